package notify

import (
	"os"
	"path/filepath"
	"testing"
)

func writeNotifiersFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write notifiers file: %v", err)
	}
	return path
}

func TestLoadRegistryYAML(t *testing.T) {
	path := writeNotifiersFile(t, "notifiers.yaml", `
notifiers:
  - id: crm-webhook
    type: http
    http:
      url: http://localhost:8080/harvest-outcomes
  - id: outcomes-queue
    type: sqs
    enabled: false
    sqs:
      uri: https://sqs.eu-central-1.amazonaws.com/000000000000/harvest-outcomes
      region: eu-central-1
`)

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}

	if got := len(reg.All()); got != 2 {
		t.Fatalf("All() = %d entries, want 2", got)
	}

	enabled := reg.Enabled()
	if len(enabled) != 1 || enabled[0].ID != "crm-webhook" {
		t.Fatalf("Enabled() = %+v, want only crm-webhook", enabled)
	}

	webhook, ok := reg.ByID("crm-webhook")
	if !ok {
		t.Fatal("crm-webhook not found")
	}
	if webhook.HTTP.Method != "POST" {
		t.Fatalf("http method default = %q, want POST", webhook.HTTP.Method)
	}
	if webhook.HTTP.TimeoutSeconds != httpDefaultTimeoutSeconds {
		t.Fatalf("http timeout default = %d", webhook.HTTP.TimeoutSeconds)
	}

	queue, _ := reg.ByID("outcomes-queue")
	if queue.EnabledValue() {
		t.Fatal("outcomes-queue should be disabled")
	}
}

func TestLoadRegistryValidation(t *testing.T) {
	cases := map[string]string{
		"missing id": `
notifiers:
  - type: http
    http:
      url: http://localhost/hook
`,
		"missing sqs uri": `
notifiers:
  - id: queue
    type: sqs
    sqs:
      region: eu-central-1
`,
		"missing sns region": `
notifiers:
  - id: topic
    type: sns
    sns:
      topic_arn: arn:aws:sns:eu-central-1:0:topic
`,
		"missing pubsub topic": `
notifiers:
  - id: ps
    type: pubsub
    pubsub:
      project_id: proj
`,
		"missing http url": `
notifiers:
  - id: hook
    type: http
    http:
      method: PUT
`,
		"duplicate ids": `
notifiers:
  - id: hook
    type: http
    http:
      url: http://localhost/a
  - id: hook
    type: http
    http:
      url: http://localhost/b
`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeNotifiersFile(t, "notifiers.yaml", content)
			if _, err := LoadRegistry(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestSanitizeHeadersDropsEmptyEntries(t *testing.T) {
	got := sanitizeHeaders(map[string]string{
		"  X-Token ": " secret ",
		"Empty":      "   ",
		"":           "value",
	})
	if len(got) != 1 || got["X-Token"] != "secret" {
		t.Fatalf("sanitizeHeaders = %v", got)
	}

	if got := sanitizeHeaders(nil); got != nil {
		t.Fatalf("nil headers should stay nil, got %v", got)
	}
}
