// Package notify adapts S3-style bucket notifications to router.Notification.
//
// Two transports deliver the same record format: webhook POSTs (S3 / MinIO
// webhook targets, see internal/server) and MinIO's ListenBucketNotification
// stream (see Listener).
package notify

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7/pkg/notification"

	"github.com/koustreak/derivr/internal/errs"
	"github.com/koustreak/derivr/internal/router"
)

// envelope is the top level of an S3 event notification body.
type envelope struct {
	Records []notification.Event `json:"Records"`
}

// Decode parses an event notification body into notifications, in record order.
func Decode(body []byte) ([]router.Notification, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "malformed event notification", err)
	}
	out := make([]router.Notification, 0, len(env.Records))
	for _, rec := range env.Records {
		out = append(out, FromEvent(rec))
	}
	return out, nil
}

// FromEvent converts one record. S3 URL-encodes object keys in events
// (spaces become '+'); MinIO prefixes event names with "s3:". Both are
// undone here so routing sees the stored key and a bare event name.
func FromEvent(e notification.Event) router.Notification {
	key := e.S3.Object.Key
	if decoded, err := url.QueryUnescape(key); err == nil {
		key = decoded
	}
	return router.Notification{
		Bucket:    e.S3.Bucket.Name,
		Key:       key,
		EventKind: strings.TrimPrefix(e.EventName, "s3:"),
	}
}
