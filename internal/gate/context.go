package gate

import (
	"context"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// RequestContext describes the event being processed. It is built once per
// event for logging and addressing the store, and never persisted.
type RequestContext struct {
	Repo  string
	PRNum int64

	// Author is the login that caused the event, if any.
	Author fn.Option[string]

	// CommentID is set for comment events.
	CommentID fn.Option[int64]

	// DeliveryID is the webhook delivery the event arrived in.
	DeliveryID string
}

// logAttrs returns the structured logging attributes of the request.
func (r RequestContext) logAttrs() []any {
	attrs := []any{"repo", r.Repo, "pr", r.PRNum}
	r.Author.WhenSome(func(a string) {
		attrs = append(attrs, "author", a)
	})
	r.CommentID.WhenSome(func(id int64) {
		attrs = append(attrs, "comment_id", id)
	})
	if r.DeliveryID != "" {
		attrs = append(attrs, "delivery_id", r.DeliveryID)
	}

	return attrs
}

type deliveryKey struct{}

// WithDeliveryID returns a context carrying the webhook delivery ID.
func WithDeliveryID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, deliveryKey{}, id)
}

// DeliveryID returns the delivery ID stored by WithDeliveryID.
func DeliveryID(ctx context.Context) string {
	id, _ := ctx.Value(deliveryKey{}).(string)
	return id
}
