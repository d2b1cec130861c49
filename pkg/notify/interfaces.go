package notify

import "context"

// Notifier sends harvest outcomes to a downstream sink (SQS, SNS, Pub/Sub, HTTP).
type Notifier interface {
	ID() string
	Type() string
	Publish(ctx context.Context, out Outcome) error
}
