package router_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportchat/backend/internal/models"
	"supportchat/backend/internal/protocol"
	"supportchat/backend/internal/storage"
)

func TestSendMessage_ConcurrentSendersLoseNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chat, _, err := f.router.CreateChat(ctx, f.user.ID, f.listener.ID)
	require.NoError(t, err)
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := f.user.ID
			if i%2 == 1 {
				sender = f.listener.ID
			}
			_, err := f.router.SendMessage(ctx, chat.ID, sender, protocol.MessageBody{Text: fmt.Sprintf("msg %d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := f.router.Chat(chat.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, n)
	texts := make(map[string]bool, n)
	ids := make(map[string]bool, n)
	for _, m := range got.Messages {
		texts[m.Text] = true
		ids[m.ID] = true
	}
	assert.Len(t, texts, n)
	assert.Len(t, ids, n)

	reopened, err := storage.NewStorageService(ctx, f.backend)
	require.NoError(t, err)
	stored, ok := reopened.Chats.Find(func(c models.Chat) bool { return c.ID == chat.ID })
	require.True(t, ok)
	assert.Len(t, stored.Messages, n)
}
