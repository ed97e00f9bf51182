// Package router classifies bucket notifications and hands them to the
// create or delete path. Classification is pure; Dispatch only forwards.
package router

import (
	"context"
	"strings"
	"time"

	"github.com/koustreak/derivr/internal/logger"
	"github.com/koustreak/derivr/internal/metrics"
	"github.com/koustreak/derivr/internal/pathrules"
)

// Default event-kind prefixes, as used by S3 event notifications.
const (
	DefaultCreationPrefix = "ObjectCreated:"
	DefaultRemovalPrefix  = "ObjectRemoved:"
)

// Action is what the pipeline does with a notification.
type Action int

const (
	ActionIgnore Action = iota
	ActionResize
	ActionCascade
)

func (a Action) String() string {
	switch a {
	case ActionResize:
		return "resize"
	case ActionCascade:
		return "cascade"
	default:
		return "ignore"
	}
}

// Notification is one object event as delivered by the event source.
type Notification struct {
	Bucket    string
	Key       string
	EventKind string
}

// Rules holds the event-kind prefixes that mark creation and removal.
type Rules struct {
	CreationPrefix string
	RemovalPrefix  string
}

// DefaultRules matches S3 event names.
func DefaultRules() Rules {
	return Rules{CreationPrefix: DefaultCreationPrefix, RemovalPrefix: DefaultRemovalPrefix}
}

// Route decides the Action for a notification. Prefixes are matched
// literally; an empty prefix matches nothing.
func (r Rules) Route(bucket, key, eventKind string) Action {
	if bucket == "" || !pathrules.IsImage(key) {
		return ActionIgnore
	}
	zone := pathrules.Classify(key).Kind
	switch {
	case zone == pathrules.ZoneStaging && hasPrefix(eventKind, r.CreationPrefix):
		return ActionResize
	case zone == pathrules.ZoneOriginal && hasPrefix(eventKind, r.RemovalPrefix):
		return ActionCascade
	}
	return ActionIgnore
}

func hasPrefix(s, prefix string) bool {
	return prefix != "" && strings.HasPrefix(s, prefix)
}

// Generator runs the create path.
type Generator interface {
	Generate(ctx context.Context, bucket, stagingKey string) error
}

// Cascader runs the delete path.
type Cascader interface {
	Cascade(ctx context.Context, bucket, originalKey string) error
}

// Router routes notifications and invokes the matching path.
type Router struct {
	rules    Rules
	gen      Generator
	cascader Cascader
	log      *logger.Logger
}

// New returns a Router.
func New(rules Rules, gen Generator, cascader Cascader, log *logger.Logger) *Router {
	if log == nil {
		log = logger.Nop()
	}
	return &Router{rules: rules, gen: gen, cascader: cascader, log: log}
}

// Route exposes the router's classification.
func (r *Router) Route(n Notification) Action {
	return r.rules.Route(n.Bucket, n.Key, n.EventKind)
}

// Dispatch routes n and runs the chosen path to completion. Ignored
// notifications return (ActionIgnore, nil).
func (r *Router) Dispatch(ctx context.Context, n Notification) (Action, error) {
	action := r.Route(n)
	metrics.RecordEvent(action.String())

	log := logger.FromContext(ctx, r.log)
	if action == ActionIgnore {
		log.With().Str("key", n.Key).Str("event", n.EventKind).Logger().Debug("ignoring notification")
		return action, nil
	}

	start := time.Now()
	var err error
	switch action {
	case ActionResize:
		err = r.gen.Generate(ctx, n.Bucket, n.Key)
	case ActionCascade:
		err = r.cascader.Cascade(ctx, n.Bucket, n.Key)
	}
	metrics.ObserveDispatch(action.String(), time.Since(start), err == nil)

	if err != nil {
		log.ErrorWith("notification failed", err, map[string]interface{}{
			"action": action.String(),
			"bucket": n.Bucket,
			"key":    n.Key,
		})
	}
	return action, err
}
