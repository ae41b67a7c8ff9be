package repository

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// localRepo implements Repository on a local directory, one text file per
// conversation. UpdatedAt is taken from the file modification time.
type localRepo struct {
	dir string
}

// NewLocal creates a filesystem backed repository rooted at dir.
func NewLocal(dir string) (Repository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create memory directory", goerr.V("dir", dir))
	}
	return &localRepo{dir: dir}, nil
}

func (r *localRepo) path(key model.ConversationKey) string {
	return filepath.Join(r.dir, key.DocID()+".txt")
}

func (r *localRepo) GetMemory(ctx context.Context, key model.ConversationKey) (*model.LongTermMemoryRecord, error) {
	path := r.path(key)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to read memory file",
			goerr.V("conversation", key.String()))
	}

	rec := &model.LongTermMemoryRecord{Summary: string(data)}
	if info, err := os.Stat(path); err == nil {
		rec.UpdatedAt = info.ModTime()
	}

	return rec, nil
}

func (r *localRepo) PutMemory(ctx context.Context, key model.ConversationKey, rec *model.LongTermMemoryRecord) error {
	path := r.path(key)

	if rec == nil {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return goerr.Wrap(err, "failed to remove memory file",
				goerr.V("conversation", key.String()))
		}
		return nil
	}

	if err := os.WriteFile(path, []byte(rec.Summary), 0o644); err != nil {
		return goerr.Wrap(err, "failed to write memory file",
			goerr.V("conversation", key.String()))
	}
	return nil
}
