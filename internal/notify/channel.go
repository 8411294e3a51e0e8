package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// Fanout delivers to every channel and reports the combined failures.
type Fanout []Channel

func (f Fanout) ScheduleLocal(ctx context.Context, n Notification) error {
	var errs []error
	for _, ch := range f {
		if err := ch.ScheduleLocal(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogChannel writes notifications to the log. Used when no other channel
// is configured.
type LogChannel struct{}

func (LogChannel) ScheduleLocal(_ context.Context, n Notification) error {
	log.Info().
		Str("audience", n.Audience).
		Str("order_id", n.Data.OrderID).
		Str("type", string(n.Data.Type)).
		Str("title", n.Title).
		Msg(n.Body)
	return nil
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, n Notification) error

func (f ChannelFunc) ScheduleLocal(ctx context.Context, n Notification) error { return f(ctx, n) }
