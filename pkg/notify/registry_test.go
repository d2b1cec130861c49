package notify

import (
	"context"
	"errors"
	"testing"
)

func TestRegistryBuildsByType(t *testing.T) {
	built := &recordingNotifier{id: "stub", typ: "stub"}
	reg := NewRegistry(map[string]Builder{
		"stub": func(context.Context, NotifierConfig, Logger) (Notifier, error) {
			return built, nil
		},
	})

	n, err := reg.NotifierFor(context.Background(), NotifierConfig{ID: "x", Type: "STUB"}, nil)
	if err != nil {
		t.Fatalf("NotifierFor: %v", err)
	}
	if n != built {
		t.Fatal("registry returned a different notifier")
	}

	if _, err := reg.NotifierFor(context.Background(), NotifierConfig{ID: "y", Type: "unknown"}, nil); err == nil {
		t.Fatal("expected error for unregistered type")
	}
	if _, err := reg.NotifierFor(context.Background(), NotifierConfig{ID: "z"}, nil); err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestBuildAllStopsOnFirstFailure(t *testing.T) {
	buildErr := errors.New("bad config")
	reg := NewRegistry(map[string]Builder{
		"ok": func(_ context.Context, cfg NotifierConfig, _ Logger) (Notifier, error) {
			return &recordingNotifier{id: cfg.ID, typ: "ok"}, nil
		},
		"bad": func(context.Context, NotifierConfig, Logger) (Notifier, error) {
			return nil, buildErr
		},
	})

	cfgs := []NotifierConfig{
		{ID: "first", Type: "ok"},
		{ID: "second", Type: "bad"},
	}
	if _, err := BuildAll(context.Background(), reg, cfgs, nil); !errors.Is(err, buildErr) {
		t.Fatalf("expected build error, got %v", err)
	}

	notifiers, err := BuildAll(context.Background(), reg, cfgs[:1], nil)
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if len(notifiers) != 1 || notifiers[0].ID() != "first" {
		t.Fatalf("unexpected notifiers %+v", notifiers)
	}
}

func TestDefaultRegistryKnowsAllTypes(t *testing.T) {
	reg := DefaultRegistry()

	// HTTP is the only type buildable without cloud credentials.
	cfg := sanitizeNotifierConfig(NotifierConfig{
		ID:   "hook",
		Type: TypeHTTP,
		HTTP: &HTTPNotifierConfig{URL: "http://localhost:8080/hook"},
	})
	n, err := reg.NotifierFor(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NotifierFor(http): %v", err)
	}
	if n.Type() != TypeHTTP || n.ID() != "hook" {
		t.Fatalf("built notifier = %s/%s", n.Type(), n.ID())
	}
}
