package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const memoryCollection = "memories"

// firestoreRepo implements Repository using Firestore. One document per
// conversation, keyed by the path-safe document ID.
type firestoreRepo struct {
	client *firestore.Client
}

// NewFirestore creates a new Firestore repository
func NewFirestore(ctx context.Context, projectID, databaseName string, opts ...option.ClientOption) (Repository, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseName, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID),
			goerr.V("database", databaseName))
	}

	return &firestoreRepo{client: client}, nil
}

func (r *firestoreRepo) GetMemory(ctx context.Context, key model.ConversationKey) (*model.LongTermMemoryRecord, error) {
	snapshot, err := r.client.Collection(memoryCollection).Doc(key.DocID()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get memory document",
			goerr.V("conversation", key.String()))
	}

	var rec model.LongTermMemoryRecord
	if err := snapshot.DataTo(&rec); err != nil {
		return nil, goerr.Wrap(err, "failed to decode memory document",
			goerr.V("conversation", key.String()))
	}

	return &rec, nil
}

func (r *firestoreRepo) PutMemory(ctx context.Context, key model.ConversationKey, rec *model.LongTermMemoryRecord) error {
	doc := r.client.Collection(memoryCollection).Doc(key.DocID())

	if rec == nil {
		if _, err := doc.Delete(ctx); err != nil {
			return goerr.Wrap(err, "failed to delete memory document",
				goerr.V("conversation", key.String()))
		}
		return nil
	}

	if _, err := doc.Set(ctx, rec); err != nil {
		return goerr.Wrap(err, "failed to set memory document",
			goerr.V("conversation", key.String()))
	}
	return nil
}
