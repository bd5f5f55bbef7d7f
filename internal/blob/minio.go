// Package blob stores uploaded chat attachments in MinIO and hands back the
// descriptor that chat messages reference.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"supportchat/backend/internal/config"
	"supportchat/backend/internal/models"
)

// ErrNotOwner is returned when a descriptor does not point into the owner's
// upload area.
var ErrNotOwner = errors.New("blob: object does not belong to owner")

// Uploader stores attachments and removes them again.
type Uploader interface {
	Upload(ctx context.Context, ownerID, filename string, r io.Reader, size int64, contentType string) (models.FileRef, error)
	Delete(ctx context.Context, ownerID string, ref models.FileRef) error
}

// Store is a MinIO-backed Uploader.
type Store struct {
	mc     *minio.Client
	bucket string
	now    func() time.Time
}

// NewStore creates the MinIO client. It does not contact the server.
func NewStore(cfg config.MinIOConfig) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio access key and secret key are required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "chat-files"
	}
	return &Store{mc: mc, bucket: bucket, now: time.Now}, nil
}

// EnsureBucket creates the bucket if it is missing.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.mc.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		log.Printf("INFO: [blob] created bucket %s", s.bucket)
	}
	return nil
}

func (s *Store) Upload(ctx context.Context, ownerID, filename string, r io.Reader, size int64, contentType string) (models.FileRef, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	id := uuid.New().String()
	key := ObjectKey(ownerID, id, filename)

	info, err := s.mc.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return models.FileRef{}, fmt.Errorf("upload %s: %w", key, err)
	}
	return models.FileRef{
		ID:         id,
		Path:       s.bucket + "/" + key,
		Mimetype:   contentType,
		Size:       info.Size,
		UploadedAt: s.now(),
	}, nil
}

// Delete removes the object a FileRef points at. ownerID must be the account
// that uploaded it.
func (s *Store) Delete(ctx context.Context, ownerID string, ref models.FileRef) error {
	key, ok := OwnedKey(s.bucket, ownerID, ref.Path)
	if !ok {
		return ErrNotOwner
	}
	if err := s.mc.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// OwnedKey returns the object key of a FileRef path if it lies in ownerID's
// upload area of bucket.
func OwnedKey(bucket, ownerID, refPath string) (string, bool) {
	key, ok := strings.CutPrefix(refPath, bucket+"/")
	if !ok || ownerID == "" || path.Clean(key) != key {
		return "", false
	}
	dir := path.Join("uploads", ownerID) + "/"
	if !strings.HasPrefix(key, dir) || len(key) == len(dir) || strings.Contains(key[len(dir):], "/") {
		return "", false
	}
	return key, true
}

// ObjectKey lays attachments out per owner. Only the base name of filename is
// kept.
func ObjectKey(ownerID, id, filename string) string {
	base := path.Base("/" + filename)
	if base == "/" || base == "." {
		base = "file"
	}
	return path.Join("uploads", ownerID, id+"-"+base)
}
