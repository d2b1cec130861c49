package notify

import (
	"context"
	"errors"
	"testing"
)

// recordingNotifier captures published outcomes.
type recordingNotifier struct {
	id       string
	typ      string
	err      error
	received []Outcome
}

func (r *recordingNotifier) ID() string   { return r.id }
func (r *recordingNotifier) Type() string { return r.typ }

func (r *recordingNotifier) Publish(_ context.Context, out Outcome) error {
	r.received = append(r.received, out)
	return r.err
}

func TestFanoutPublishesToAllNotifiers(t *testing.T) {
	a := &recordingNotifier{id: "a", typ: "http"}
	b := &recordingNotifier{id: "b", typ: "sqs"}
	fanout := NewFanout([]Notifier{a, nil, b})

	if fanout.Size() != 2 {
		t.Fatalf("Size() = %d, want 2 (nil dropped)", fanout.Size())
	}

	out := Outcome{SiteID: "targi-kielce", Status: "success"}
	delivered, err := fanout.Publish(context.Background(), out)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if delivered != 2 {
		t.Fatalf("delivered = %d, want 2", delivered)
	}
	if len(a.received) != 1 || len(b.received) != 1 {
		t.Fatalf("notifiers received %d/%d outcomes", len(a.received), len(b.received))
	}
}

func TestFanoutContinuesPastFailures(t *testing.T) {
	sinkErr := errors.New("queue down")
	a := &recordingNotifier{id: "a", typ: "sqs", err: sinkErr}
	b := &recordingNotifier{id: "b", typ: "http"}
	fanout := NewFanout([]Notifier{a, b})

	delivered, err := fanout.Publish(context.Background(), Outcome{SiteID: "s"})
	if !errors.Is(err, sinkErr) {
		t.Fatalf("expected joined sink error, got %v", err)
	}
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}
	if len(b.received) != 1 {
		t.Fatal("healthy notifier must still receive the outcome")
	}
}

func TestFanoutEmptyIsNoop(t *testing.T) {
	var fanout *Fanout
	if delivered, err := fanout.Publish(context.Background(), Outcome{}); delivered != 0 || err != nil {
		t.Fatalf("nil fanout: %d, %v", delivered, err)
	}

	empty := NewFanout(nil)
	if delivered, err := empty.Publish(context.Background(), Outcome{}); delivered != 0 || err != nil {
		t.Fatalf("empty fanout: %d, %v", delivered, err)
	}
}
