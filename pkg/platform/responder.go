package platform

import (
	"context"

	"github.com/m-mizutani/chack/pkg/model"
)

// Responder delivers a reply back to the originating platform. Adapters apply
// their own message limits via SplitMessage before sending.
type Responder interface {
	Reply(ctx context.Context, reply *model.Reply) error
}

// StatusNotifier is optionally implemented by responders that can show an
// ephemeral "working on it" indicator. The returned remove function is called
// after the final reply is delivered.
type StatusNotifier interface {
	PostStatus(ctx context.Context, ev *model.Event) (remove func(context.Context), err error)
}
