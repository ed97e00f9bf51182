package notify

import (
	"context"
	"time"

	"github.com/minio/minio-go/v7/pkg/notification"

	"github.com/koustreak/derivr/internal/logger"
	"github.com/koustreak/derivr/internal/router"
)

// DefaultEvents subscribes to every create and remove event.
var DefaultEvents = []string{
	string(notification.ObjectCreatedAll),
	string(notification.ObjectRemovedAll),
}

const defaultRetryDelay = 5 * time.Second

// Source is a bucket notification stream, e.g. the minio driver.
type Source interface {
	ListenBucketNotification(ctx context.Context, bucket, prefix, suffix string, events []string) <-chan notification.Info
}

// Dispatcher handles one notification to completion.
type Dispatcher interface {
	Dispatch(ctx context.Context, n router.Notification) (router.Action, error)
}

// ListenerConfig selects what a Listener subscribes to.
type ListenerConfig struct {
	Bucket     string
	Prefix     string
	Events     []string      // nil means DefaultEvents
	RetryDelay time.Duration // pause before resubscribing after a stream error
}

// Listener feeds a bucket's notification stream into a Dispatcher, one
// record at a time.
type Listener struct {
	src Source
	d   Dispatcher
	cfg ListenerConfig
	log *logger.Logger
}

// NewListener returns a Listener. Call Run to start it.
func NewListener(src Source, d Dispatcher, cfg ListenerConfig, log *logger.Logger) *Listener {
	if cfg.Events == nil {
		cfg.Events = DefaultEvents
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Listener{
		src: src,
		d:   d,
		cfg: cfg,
		log: log.With().Str("component", "listener").Str("bucket", cfg.Bucket).Logger(),
	}
}

// Run blocks until ctx is cancelled, resubscribing whenever the stream
// reports an error or closes. Failed dispatches are logged; the stream
// offers no redelivery.
func (l *Listener) Run(ctx context.Context) error {
	for {
		l.log.Infof("subscribing to %s under %q", l.cfg.Bucket, l.cfg.Prefix)
		// Cancelling the subscription stops the SDK goroutine feeding it.
		sub, cancel := context.WithCancel(ctx)
		l.consume(sub, l.src.ListenBucketNotification(sub, l.cfg.Bucket, l.cfg.Prefix, "", l.cfg.Events))
		cancel()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.cfg.RetryDelay):
		}
	}
}

func (l *Listener) consume(ctx context.Context, stream <-chan notification.Info) {
	for {
		select {
		case <-ctx.Done():
			return
		case info, ok := <-stream:
			if !ok {
				l.log.Warn("notification stream closed")
				return
			}
			if info.Err != nil {
				l.log.ErrorWith("notification stream failed", info.Err, nil)
				return
			}
			for _, rec := range info.Records {
				// Errors are already logged by the router.
				_, _ = l.d.Dispatch(ctx, FromEvent(rec))
			}
		}
	}
}
