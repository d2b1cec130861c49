package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fairscope-hq/expo-harvester/internal/domain"
	"github.com/fairscope-hq/expo-harvester/internal/logger"
	"github.com/fairscope-hq/expo-harvester/pkg/notify"
	"github.com/fairscope-hq/expo-harvester/pkg/sites"
)

// Status is the per-event harvest outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial_success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// EventOutcome summarizes one event's harvest.
type EventOutcome struct {
	Event        domain.Event
	Status       Status
	NewCompanies int
	RemoteTotal  int
	PagesFetched int
	Err          error
}

// Service is the harvest orchestrator: it enumerates events per site,
// filters to relevant ones, plans the incremental sync, drives the page
// walker, and commits new records through the persistence gateway.
// Failures never escalate beyond the event they occurred in.
type Service struct {
	parsers    sites.ParserRegistry
	walker     *Walker
	gateway    Gateway
	notifier   OutcomeNotifier
	futureOnly bool
	log        logger.Logger
	now        func() time.Time
}

// NewService wires the orchestrator. notifier may be nil.
func NewService(parsers sites.ParserRegistry, walker *Walker, gateway Gateway, notifier OutcomeNotifier, futureOnly bool, log logger.Logger) *Service {
	if log == nil {
		log = &logger.NopLogger{}
	}
	return &Service{
		parsers:    parsers,
		walker:     walker,
		gateway:    gateway,
		notifier:   notifier,
		futureOnly: futureOnly,
		log:        log,
		now:        time.Now,
	}
}

// Run executes a harvest pass for all configured sites. It returns an
// error only when event enumeration failed for every site; individual
// event failures are logged and carried in outcomes.
func (s *Service) Run(ctx context.Context, siteList []sites.Site) error {
	if s == nil || s.parsers == nil || s.walker == nil || s.gateway == nil {
		return fmt.Errorf("harvest service is not initialized")
	}
	if len(siteList) == 0 {
		return fmt.Errorf("no sites configured for harvesting")
	}

	var enumErrs []error
	enumerated := false
	for _, site := range siteList {
		events, err := s.listEvents(ctx, site)
		if err != nil {
			enumErrs = append(enumErrs, fmt.Errorf("site %s: %w", site.ID, err))
			s.log.ErrorObj("event enumeration failed", "site_error", map[string]any{
				"site_id": site.ID,
				"error":   err.Error(),
			})
			continue
		}
		enumerated = true

		events = s.filterEvents(site, events)
		for _, ev := range events {
			if err := ctx.Err(); err != nil {
				return err
			}
			outcome := s.harvestEvent(ctx, site, ev)
			s.report(ctx, site, outcome)
		}
	}

	if !enumerated {
		return fmt.Errorf("all sites failed to enumerate events: %w", errors.Join(enumErrs...))
	}
	return nil
}

// HarvestURL harvests a single event-calendar URL, resolving its parser
// from the registry's URL patterns. Used for ad-hoc/backfill runs.
func (s *Service) HarvestURL(ctx context.Context, reg *sites.Registry, url string) error {
	site, err := reg.ForURL(url)
	if err != nil {
		return err
	}
	site.CalendarURL = url
	return s.Run(ctx, []sites.Site{site})
}

func (s *Service) listEvents(ctx context.Context, site sites.Site) ([]domain.Event, error) {
	parser, err := s.parsers.ParserFor(site)
	if err != nil {
		return nil, err
	}
	return parser.ListEvents(ctx, site)
}

// filterEvents drops past events when the future-only flag is set. The
// boundary is strict: events dated today are excluded.
func (s *Service) filterEvents(site sites.Site, events []domain.Event) []domain.Event {
	if !s.futureOnly {
		return events
	}

	today := s.now().Truncate(24 * time.Hour)
	out := make([]domain.Event, 0, len(events))
	for _, ev := range events {
		if ev.Date.After(today) {
			out = append(out, ev)
		}
	}

	s.log.InfoObj("events filtered to future", "event_filter", map[string]any{
		"site_id":  site.ID,
		"total":    len(events),
		"retained": len(out),
	})
	return out
}

// harvestEvent runs the per-event pipeline: count, plan, walk, dedup,
// commit. Every failure is scoped to this event.
func (s *Service) harvestEvent(ctx context.Context, site sites.Site, ev domain.Event) EventOutcome {
	outcome := EventOutcome{Event: ev, RemoteTotal: ev.ExhibitorCount}

	localCount, err := s.gateway.CountCompanies(ctx, ev.CanonicalURL)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = fmt.Errorf("count companies: %w", err)
		return outcome
	}

	plan := PlanSync(ev.ExhibitorCount, localCount)
	if plan.Decision == DecisionSkip {
		outcome.Status = StatusSkipped
		return outcome
	}

	knownNames, err := s.gateway.ExistingCompanyNames(ctx, ev.CanonicalURL)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = fmt.Errorf("load existing company names: %w", err)
		return outcome
	}

	walk := s.walker.Walk(ctx, site, ev, plan.Budget(), func(key string) bool {
		return knownNames[key]
	})
	outcome.PagesFetched = walk.PagesFetched
	if walk.DeclaredTotal >= 0 {
		outcome.RemoteTotal = walk.DeclaredTotal
	}

	if walk.Err != nil && len(walk.NewCompanies) == 0 {
		outcome.Status = StatusFailed
		outcome.Err = walk.Err
		return outcome
	}

	if plan.Delta > 0 && len(walk.NewCompanies) < plan.Delta {
		// Remote total changed, or known records sat at unexpected
		// positions. Under-fetch is logged, not an error.
		s.log.WarnObj("fewer new records than planned delta", "sync_underfetch", map[string]any{
			"event_url": ev.CanonicalURL,
			"delta":     plan.Delta,
			"found":     len(walk.NewCompanies),
		})
	}

	if err := s.commit(ctx, ev, walk.NewCompanies); err != nil {
		outcome.Status = StatusFailed
		outcome.Err = err
		return outcome
	}
	outcome.NewCompanies = len(walk.NewCompanies)

	if walk.Err != nil {
		outcome.Status = StatusPartial
		outcome.Err = walk.Err
	} else {
		outcome.Status = StatusSuccess
	}
	return outcome
}

// commit persists the event and its new companies as one per-event batch.
func (s *Service) commit(ctx context.Context, ev domain.Event, companies []domain.Company) error {
	exists, err := s.gateway.EventExists(ctx, ev.CanonicalURL)
	if err != nil {
		return fmt.Errorf("event exists: %w", err)
	}
	if exists && len(companies) == 0 {
		return nil
	}

	eventID, err := s.gateway.UpsertEvent(ctx, ev)
	if err != nil {
		return fmt.Errorf("upsert event: %w", err)
	}
	if len(companies) == 0 {
		return nil
	}
	if err := s.gateway.InsertCompanies(ctx, eventID, companies); err != nil {
		return fmt.Errorf("insert companies: %w", err)
	}
	return nil
}

// report logs the outcome and fans it out to notifiers. Notifier failures
// never affect the harvest.
func (s *Service) report(ctx context.Context, site sites.Site, outcome EventOutcome) {
	fields := map[string]any{
		"site_id":       site.ID,
		"event_url":     outcome.Event.CanonicalURL,
		"status":        string(outcome.Status),
		"new_companies": outcome.NewCompanies,
		"remote_total":  outcome.RemoteTotal,
		"pages_fetched": outcome.PagesFetched,
	}
	if outcome.Err != nil {
		fields["error"] = outcome.Err.Error()
		s.log.WarnObj("event harvest finished", "event_outcome", fields)
	} else {
		s.log.InfoObj("event harvest finished", "event_outcome", fields)
	}

	if s.notifier == nil {
		return
	}
	delivered, err := s.notifier.Publish(ctx, notify.NewOutcome(site.ID, outcome.Event, string(outcome.Status), outcome.NewCompanies, outcome.RemoteTotal))
	if err != nil {
		s.log.WarnObj("outcome notification failed", "notify_error", map[string]any{
			"event_url": outcome.Event.CanonicalURL,
			"delivered": delivered,
			"error":     err.Error(),
		})
	}
}
