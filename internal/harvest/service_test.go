package harvest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fairscope-hq/expo-harvester/internal/domain"
	"github.com/fairscope-hq/expo-harvester/pkg/notify"
	"github.com/fairscope-hq/expo-harvester/pkg/sites"
)

// fakeGateway is an in-memory Gateway tracking call counts.
type fakeGateway struct {
	nextID    int64
	events    map[string]int64
	idToURL   map[int64]string
	companies map[string]map[string]domain.Company

	countErr  error
	insertErr error

	insertCalls int
	upsertCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		events:    make(map[string]int64),
		idToURL:   make(map[int64]string),
		companies: make(map[string]map[string]domain.Company),
	}
}

func (g *fakeGateway) seed(eventURL string, names ...string) {
	g.nextID++
	g.events[eventURL] = g.nextID
	g.idToURL[g.nextID] = eventURL
	byName := make(map[string]domain.Company, len(names))
	for _, name := range names {
		byName[domain.NormalizeName(name)] = domain.Company{Name: name, EventURL: eventURL}
	}
	g.companies[eventURL] = byName
}

func (g *fakeGateway) CountCompanies(_ context.Context, eventURL string) (int, error) {
	if g.countErr != nil {
		return 0, g.countErr
	}
	return len(g.companies[eventURL]), nil
}

func (g *fakeGateway) EventExists(_ context.Context, canonicalURL string) (bool, error) {
	_, ok := g.events[canonicalURL]
	return ok, nil
}

func (g *fakeGateway) ExistingCompanyNames(_ context.Context, eventURL string) (map[string]bool, error) {
	out := make(map[string]bool, len(g.companies[eventURL]))
	for key := range g.companies[eventURL] {
		out[key] = true
	}
	return out, nil
}

func (g *fakeGateway) UpsertEvent(_ context.Context, ev domain.Event) (int64, error) {
	g.upsertCalls++
	if id, ok := g.events[ev.CanonicalURL]; ok {
		return id, nil
	}
	g.nextID++
	g.events[ev.CanonicalURL] = g.nextID
	g.idToURL[g.nextID] = ev.CanonicalURL
	return g.nextID, nil
}

func (g *fakeGateway) InsertCompanies(_ context.Context, eventID int64, companies []domain.Company) error {
	g.insertCalls++
	if g.insertErr != nil {
		return g.insertErr
	}
	eventURL, ok := g.idToURL[eventID]
	if !ok {
		return errors.New("unknown event id")
	}
	byName := g.companies[eventURL]
	if byName == nil {
		byName = make(map[string]domain.Company)
		g.companies[eventURL] = byName
	}
	for _, c := range companies {
		key := domain.NormalizeName(c.Name)
		if _, exists := byName[key]; !exists {
			byName[key] = c
		}
	}
	return nil
}

// fakeNotifier records published outcomes.
type fakeNotifier struct {
	outcomes []notify.Outcome
	err      error
}

func (f *fakeNotifier) Publish(_ context.Context, out notify.Outcome) (int, error) {
	f.outcomes = append(f.outcomes, out)
	if f.err != nil {
		return 0, f.err
	}
	return 1, nil
}

func newTestService(parser sites.Parser, gateway Gateway, notifier OutcomeNotifier, futureOnly bool) *Service {
	reg := &fakeRegistry{parser: parser}
	return NewService(reg, NewWalker(reg, 25), gateway, notifier, futureOnly, nil)
}

func seedNames(n int) []string {
	companies := makeCompanies(n, "")
	names := make([]string, n)
	for i := range names {
		names[i] = companies[i].Name
	}
	return names
}

func TestRunSkipDecisionIssuesNoFetches(t *testing.T) {
	eventURL := "https://fake.example/agro-tech"
	parser := &fakeParser{
		events:    []domain.Event{walkEvent(25)},
		companies: makeCompanies(25, eventURL),
		total:     25,
	}
	gateway := newFakeGateway()
	gateway.seed(eventURL, seedNames(25)...)
	notifier := &fakeNotifier{}

	svc := newTestService(parser, gateway, notifier, false)
	if err := svc.Run(context.Background(), []sites.Site{walkSite()}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(parser.pageCalls) != 0 {
		t.Fatalf("skip decision must not fetch listing pages, got %v", parser.pageCalls)
	}
	if len(notifier.outcomes) != 1 || notifier.outcomes[0].Status != string(StatusSkipped) {
		t.Fatalf("unexpected outcomes %+v", notifier.outcomes)
	}
}

func TestRunDeltaFetchInsertsOnlyNewCompanies(t *testing.T) {
	eventURL := "https://fake.example/agro-tech"
	parser := &fakeParser{
		events:    []domain.Event{walkEvent(30)},
		companies: makeCompanies(30, eventURL),
		total:     30,
	}
	gateway := newFakeGateway()
	gateway.seed(eventURL, seedNames(25)...)
	notifier := &fakeNotifier{}

	svc := newTestService(parser, gateway, notifier, false)
	if err := svc.Run(context.Background(), []sites.Site{walkSite()}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := len(gateway.companies[eventURL]); got != 30 {
		t.Fatalf("stored companies = %d, want 30", got)
	}
	if gateway.insertCalls != 1 {
		t.Fatalf("insert calls = %d, want 1", gateway.insertCalls)
	}
	out := notifier.outcomes[0]
	if out.Status != string(StatusSuccess) || out.NewCompanies != 5 {
		t.Fatalf("outcome = %+v, want success with 5 new", out)
	}

	// A second pass over unchanged remote data is a no-op.
	parser.pageCalls = nil
	if err := svc.Run(context.Background(), []sites.Site{walkSite()}); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(parser.pageCalls) != 0 {
		t.Fatalf("second run should skip, fetched pages %v", parser.pageCalls)
	}
	if got := len(gateway.companies[eventURL]); got != 30 {
		t.Fatalf("second run changed stored count to %d", got)
	}
}

func TestRunUnknownRemoteTotalProbesFirstPage(t *testing.T) {
	eventURL := "https://fake.example/agro-tech"
	parser := &fakeParser{
		events:    []domain.Event{walkEvent(-1)},
		companies: makeCompanies(30, eventURL),
		total:     30,
	}
	gateway := newFakeGateway()
	notifier := &fakeNotifier{}

	svc := newTestService(parser, gateway, notifier, false)
	if err := svc.Run(context.Background(), []sites.Site{walkSite()}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(parser.pageCalls) != 2 {
		t.Fatalf("expected 2 pages for probed total 30, got %v", parser.pageCalls)
	}
	out := notifier.outcomes[0]
	if out.RemoteTotal != 30 {
		t.Fatalf("remote total not taken from probe, got %d", out.RemoteTotal)
	}
	if out.NewCompanies != 30 {
		t.Fatalf("new companies = %d, want 30", out.NewCompanies)
	}
}

func TestRunFutureOnlyFiltersPastAndTodayEvents(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	past := walkEvent(5)
	past.CanonicalURL = "https://fake.example/past"
	past.ListingURL = "https://fake.example/past/wystawcy"
	past.Date = now.AddDate(0, 0, -1)

	today := walkEvent(5)
	today.CanonicalURL = "https://fake.example/today"
	today.ListingURL = "https://fake.example/today/wystawcy"
	today.Date = now.Truncate(24 * time.Hour)

	future := walkEvent(2)
	future.CanonicalURL = "https://fake.example/future"
	future.ListingURL = "https://fake.example/future/wystawcy"
	future.Date = now.AddDate(0, 1, 0)

	parser := &fakeParser{
		events:    []domain.Event{past, today, future},
		companies: makeCompanies(2, future.CanonicalURL),
		total:     2,
	}
	gateway := newFakeGateway()
	notifier := &fakeNotifier{}

	svc := newTestService(parser, gateway, notifier, true)
	svc.now = func() time.Time { return now }

	if err := svc.Run(context.Background(), []sites.Site{walkSite()}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(notifier.outcomes) != 1 {
		t.Fatalf("expected only the future event harvested, got %d outcomes", len(notifier.outcomes))
	}
	if notifier.outcomes[0].EventURL != future.CanonicalURL {
		t.Fatalf("harvested wrong event %q", notifier.outcomes[0].EventURL)
	}
}

func TestRunFailsOnlyWhenAllSitesFailEnumeration(t *testing.T) {
	parser := &fakeParser{listErr: errors.New("calendar unreachable")}
	svc := newTestService(parser, newFakeGateway(), nil, false)

	err := svc.Run(context.Background(), []sites.Site{walkSite()})
	if err == nil {
		t.Fatal("expected error when every site fails enumeration")
	}
}

func TestRunIsolatesEventFailures(t *testing.T) {
	first := walkEvent(5)
	first.CanonicalURL = "https://fake.example/first"
	first.ListingURL = "https://fake.example/first/wystawcy"

	second := walkEvent(2)
	second.CanonicalURL = "https://fake.example/second"
	second.ListingURL = "https://fake.example/second/wystawcy"

	parser := &fakeParser{
		events:    []domain.Event{first, second},
		companies: makeCompanies(2, second.CanonicalURL),
		total:     2,
	}
	gateway := newFakeGateway()
	notifier := &fakeNotifier{}

	failing := &urlFailingParser{inner: parser, failURL: "/first/"}
	svc := newTestService(failing, gateway, notifier, false)

	if err := svc.Run(context.Background(), []sites.Site{walkSite()}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(notifier.outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(notifier.outcomes))
	}
	if notifier.outcomes[0].Status != string(StatusFailed) {
		t.Fatalf("first outcome = %q, want failed", notifier.outcomes[0].Status)
	}
	if notifier.outcomes[1].Status != string(StatusSuccess) {
		t.Fatalf("second outcome = %q, want success", notifier.outcomes[1].Status)
	}
	if got := len(gateway.companies[second.CanonicalURL]); got != 2 {
		t.Fatalf("second event stored %d companies, want 2", got)
	}
}

// urlFailingParser fails ListExhibitors for URLs containing failURL.
type urlFailingParser struct {
	inner   *fakeParser
	failURL string
}

func (p *urlFailingParser) Type() string { return p.inner.Type() }

func (p *urlFailingParser) ListEvents(ctx context.Context, site sites.Site) ([]domain.Event, error) {
	return p.inner.ListEvents(ctx, site)
}

func (p *urlFailingParser) ListExhibitors(ctx context.Context, site sites.Site, pageURL string) (sites.ExhibitorPage, error) {
	if p.failURL != "" && strings.Contains(pageURL, p.failURL) {
		return sites.ExhibitorPage{}, errors.New("page unavailable")
	}
	return p.inner.ListExhibitors(ctx, site, pageURL)
}

func TestRunPartialSuccessWhenLaterPageFails(t *testing.T) {
	eventURL := "https://fake.example/agro-tech"
	pageErr := errors.New("payload missing")
	parser := &fakeParser{
		events:    []domain.Event{walkEvent(57)},
		companies: makeCompanies(57, eventURL),
		total:     57,
		failPages: map[int]error{2: pageErr},
	}
	gateway := newFakeGateway()
	notifier := &fakeNotifier{}

	svc := newTestService(parser, gateway, notifier, false)
	if err := svc.Run(context.Background(), []sites.Site{walkSite()}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	out := notifier.outcomes[0]
	if out.Status != string(StatusPartial) {
		t.Fatalf("outcome status = %q, want partial_success", out.Status)
	}
	if out.NewCompanies != 25 {
		t.Fatalf("page-1 records must be committed, got %d", out.NewCompanies)
	}
	if got := len(gateway.companies[eventURL]); got != 25 {
		t.Fatalf("stored companies = %d, want 25", got)
	}
}

func TestRunNotifierFailureDoesNotAffectHarvest(t *testing.T) {
	eventURL := "https://fake.example/agro-tech"
	parser := &fakeParser{
		events:    []domain.Event{walkEvent(2)},
		companies: makeCompanies(2, eventURL),
		total:     2,
	}
	gateway := newFakeGateway()
	notifier := &fakeNotifier{err: errors.New("queue down")}

	svc := newTestService(parser, gateway, notifier, false)
	if err := svc.Run(context.Background(), []sites.Site{walkSite()}); err != nil {
		t.Fatalf("Run must tolerate notifier failures: %v", err)
	}
	if got := len(gateway.companies[eventURL]); got != 2 {
		t.Fatalf("stored companies = %d, want 2", got)
	}
}

func loadSiteRegistry(t *testing.T) *sites.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sites.yaml")
	content := `
sites:
  - id: fake-site
    name: Fake
    type: fake
    calendar_url: https://fake.example/kalendarium
    url_pattern: fake.example
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write sites file: %v", err)
	}
	reg, err := sites.LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	return reg
}

func TestHarvestURLResolvesSiteByPattern(t *testing.T) {
	eventURL := "https://fake.example/agro-tech"
	parser := &fakeParser{
		events:    []domain.Event{walkEvent(2)},
		companies: makeCompanies(2, eventURL),
		total:     2,
	}
	gateway := newFakeGateway()
	notifier := &fakeNotifier{}
	svc := newTestService(parser, gateway, notifier, false)

	reg := loadSiteRegistry(t)
	if err := svc.HarvestURL(context.Background(), reg, "https://FAKE.EXAMPLE/kalendarium-wiosna"); err != nil {
		t.Fatalf("HarvestURL: %v", err)
	}

	if parser.eventCalls != 1 {
		t.Fatalf("event enumerations = %d, want 1", parser.eventCalls)
	}
	if len(notifier.outcomes) != 1 || notifier.outcomes[0].Status != string(StatusSuccess) {
		t.Fatalf("unexpected outcomes %+v", notifier.outcomes)
	}
	if got := len(gateway.companies[eventURL]); got != 2 {
		t.Fatalf("stored companies = %d, want 2", got)
	}
}

func TestHarvestURLRejectsUnmappedURL(t *testing.T) {
	svc := newTestService(&fakeParser{}, newFakeGateway(), nil, false)
	reg := loadSiteRegistry(t)

	err := svc.HarvestURL(context.Background(), reg, "https://unknown.example/events")
	if !errors.Is(err, sites.ErrNoSite) {
		t.Fatalf("expected ErrNoSite, got %v", err)
	}
}

func TestRunRequiresSites(t *testing.T) {
	svc := newTestService(&fakeParser{}, newFakeGateway(), nil, false)
	if err := svc.Run(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty site list")
	}
}
