package platform

import (
	"context"
	"fmt"
	"io"

	"github.com/m-mizutani/chack/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

const consoleLimit = 4000

// Console is a Responder writing replies to a local stream, used by the
// interactive chat command.
type Console struct {
	w io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Reply(ctx context.Context, reply *model.Reply) error {
	for _, chunk := range SplitMessage(reply.Text, consoleLimit) {
		if _, err := fmt.Fprintln(c.w, chunk); err != nil {
			return goerr.Wrap(err, "failed to write reply")
		}
	}
	return nil
}
