package realtime

import (
	"context"
	"errors"
)

// ErrStreamClosed is returned by Stream.Next once the underlying connection is gone.
var ErrStreamClosed = errors.New("realtime: stream closed")

// Source opens connections to a change feed.
type Source interface {
	Connect(ctx context.Context) (Stream, error)
}

// Stream is one live connection to a change feed. Next blocks until an event
// arrives, ctx is done, or the connection fails. Errors wrapping
// ErrMalformedEvent leave the stream usable; any other error ends it.
type Stream interface {
	Next(ctx context.Context) (ChangeEvent, error)
	Close(ctx context.Context) error
}
