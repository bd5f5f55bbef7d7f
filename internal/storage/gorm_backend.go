package storage

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CollectionDocument is one stored collection.
type CollectionDocument struct {
	Name      string `gorm:"primaryKey"`
	Payload   []byte `gorm:"not null"`
	UpdatedAt time.Time
}

// QuarantinedDocument is a collection version that failed to load.
type QuarantinedDocument struct {
	ID            uint   `gorm:"primaryKey"`
	Name          string `gorm:"index;not null"`
	Payload       []byte
	QuarantinedAt time.Time
}

func (QuarantinedDocument) TableName() string { return "collection_quarantine" }

// GormBackend stores collections as rows of a single table. A save is one
// upsert statement, so readers see either version.
type GormBackend struct {
	DB *gorm.DB
}

// NewGormBackend migrates the tables it needs.
func NewGormBackend(db *gorm.DB) (*GormBackend, error) {
	if err := db.AutoMigrate(&CollectionDocument{}, &QuarantinedDocument{}); err != nil {
		return nil, err
	}
	return &GormBackend{DB: db}, nil
}

func (b *GormBackend) Load(ctx context.Context, collection string) ([]byte, error) {
	var doc CollectionDocument
	err := b.DB.WithContext(ctx).Where("name = ?", collection).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.Payload, nil
}

// Version is the row's update timestamp.
func (b *GormBackend) Version(ctx context.Context, collection string) (string, error) {
	var doc CollectionDocument
	err := b.DB.WithContext(ctx).Select("updated_at").Where("name = ?", collection).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(doc.UpdatedAt.UnixNano(), 10), nil
}

func (b *GormBackend) Save(ctx context.Context, collection string, data []byte) error {
	doc := CollectionDocument{Name: collection, Payload: data, UpdatedAt: time.Now()}
	return b.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&doc).Error
}

func (b *GormBackend) Quarantine(ctx context.Context, collection string) error {
	return b.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc CollectionDocument
		err := tx.Where("name = ?", collection).First(&doc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := tx.Create(&QuarantinedDocument{
			Name:          collection,
			Payload:       doc.Payload,
			QuarantinedAt: time.Now(),
		}).Error; err != nil {
			return err
		}
		return tx.Delete(&CollectionDocument{}, "name = ?", collection).Error
	})
}
