package repository

import (
	"context"

	"github.com/m-mizutani/chack/pkg/model"
)

// Repository persists long-term memory records across process restarts.
type Repository interface {
	// GetMemory returns the stored record for the conversation, or nil when
	// none exists.
	GetMemory(ctx context.Context, key model.ConversationKey) (*model.LongTermMemoryRecord, error)

	// PutMemory stores the record for the conversation, replacing any
	// previous one. A nil record deletes the entry.
	PutMemory(ctx context.Context, key model.ConversationKey, rec *model.LongTermMemoryRecord) error
}
