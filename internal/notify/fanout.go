package notify

import (
	"context"
	"strings"

	"github.com/aditya/haggle/internal/models"
	"golang.org/x/sync/errgroup"
)

// Fanout delivers to every sink concurrently. It returns the first error but
// always lets every sink finish.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Name() string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

func (f *Fanout) Notify(ctx context.Context, n models.Notification) error {
	eg := &errgroup.Group{}
	for i := range f.sinks {
		sink := f.sinks[i]
		eg.Go(func() error { return sink.Notify(ctx, n) })
	}
	return eg.Wait()
}

func (f *Fanout) Hint(ctx context.Context, h models.ConversationHint) error {
	eg := &errgroup.Group{}
	for i := range f.sinks {
		sink := f.sinks[i]
		eg.Go(func() error { return sink.Hint(ctx, h) })
	}
	return eg.Wait()
}
