package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/chack/pkg/repository"
	"github.com/m-mizutani/gt"
)

func TestLocalRepositoryRoundTrip(t *testing.T) {
	repo, err := repository.NewLocal(t.TempDir())
	gt.NoError(t, err)

	ctx := context.Background()
	key := model.ConversationKey{Platform: "telegram", ChatID: "12345"}

	got, err := repo.GetMemory(ctx, key)
	gt.NoError(t, err)
	gt.Nil(t, got)

	rec := &model.LongTermMemoryRecord{
		Summary:   "user prefers short answers\nworking on a Go migration",
		UpdatedAt: time.Now(),
	}
	gt.NoError(t, repo.PutMemory(ctx, key, rec))

	got, err = repo.GetMemory(ctx, key)
	gt.NoError(t, err)
	gt.NotNil(t, got)
	gt.Equal(t, got.Summary, rec.Summary)
}

func TestLocalRepositoryOverwrite(t *testing.T) {
	repo, err := repository.NewLocal(t.TempDir())
	gt.NoError(t, err)

	ctx := context.Background()
	key := model.ConversationKey{Platform: "console", ChatID: "local"}

	gt.NoError(t, repo.PutMemory(ctx, key, &model.LongTermMemoryRecord{Summary: "first"}))
	gt.NoError(t, repo.PutMemory(ctx, key, &model.LongTermMemoryRecord{Summary: "second"}))

	got, err := repo.GetMemory(ctx, key)
	gt.NoError(t, err)
	gt.Equal(t, got.Summary, "second")
}

func TestLocalRepositoryDelete(t *testing.T) {
	repo, err := repository.NewLocal(t.TempDir())
	gt.NoError(t, err)

	ctx := context.Background()
	key := model.ConversationKey{Platform: "console", ChatID: "local"}

	gt.NoError(t, repo.PutMemory(ctx, key, &model.LongTermMemoryRecord{Summary: "gone soon"}))
	gt.NoError(t, repo.PutMemory(ctx, key, nil))

	got, err := repo.GetMemory(ctx, key)
	gt.NoError(t, err)
	gt.Nil(t, got)

	// Deleting a missing record is fine.
	gt.NoError(t, repo.PutMemory(ctx, key, nil))
}

func TestLocalRepositorySeparateConversations(t *testing.T) {
	repo, err := repository.NewLocal(t.TempDir())
	gt.NoError(t, err)

	ctx := context.Background()
	k1 := model.ConversationKey{Platform: "discord", ChatID: "thread/123"}
	k2 := model.ConversationKey{Platform: "telegram", ChatID: "123"}

	gt.NoError(t, repo.PutMemory(ctx, k1, &model.LongTermMemoryRecord{Summary: "one"}))
	gt.NoError(t, repo.PutMemory(ctx, k2, &model.LongTermMemoryRecord{Summary: "two"}))

	got1, err := repo.GetMemory(ctx, k1)
	gt.NoError(t, err)
	gt.Equal(t, got1.Summary, "one")

	got2, err := repo.GetMemory(ctx, k2)
	gt.NoError(t, err)
	gt.Equal(t, got2.Summary, "two")
}
