package harvest

import (
	"context"

	"github.com/fairscope-hq/expo-harvester/internal/domain"
	"github.com/fairscope-hq/expo-harvester/pkg/notify"
)

// Gateway is the narrow persistence surface the orchestrator needs. Retry
// and transaction semantics for the store itself are the gateway's concern;
// the orchestrator treats every call as authoritative and idempotent.
type Gateway interface {
	// CountCompanies returns how many companies are persisted for the event.
	CountCompanies(ctx context.Context, eventURL string) (int, error)
	// EventExists reports whether the event is already persisted.
	EventExists(ctx context.Context, canonicalURL string) (bool, error)
	// ExistingCompanyNames returns the normalized names persisted for the
	// event, keyed for O(1) dedup lookups.
	ExistingCompanyNames(ctx context.Context, eventURL string) (map[string]bool, error)
	// UpsertEvent persists the event, returning its id. Upserting an
	// already-known canonical URL returns the existing id.
	UpsertEvent(ctx context.Context, ev domain.Event) (int64, error)
	// InsertCompanies persists new companies under the event id.
	InsertCompanies(ctx context.Context, eventID int64, companies []domain.Company) error
}

// OutcomeNotifier announces per-event harvest outcomes downstream.
type OutcomeNotifier interface {
	Publish(ctx context.Context, out notify.Outcome) (int, error)
}
