package pii_test

import (
	"strings"
	"testing"
	"time"

	"github.com/Aryannovice/metamorphosis/internal/gateway/pii"
)

// stubRecognizer returns a fixed entity list, standing in for an external
// NER backend.
type stubRecognizer struct {
	entities []pii.Entity
}

func (s *stubRecognizer) Recognize(string) []pii.Entity { return s.entities }

func TestMaskUnmaskRoundTrip(t *testing.T) {
	g := pii.NewGuard(nil, pii.NewStore())

	const text = "Contact john@example.com or call (555) 123-4567. " +
		"SSN 123-45-6789, card 4111-1111-1111-1111, host 192.168.1.1."

	res := g.Mask(text, "req-1")
	if res.Masked == text {
		t.Fatal("mask changed nothing")
	}
	for _, raw := range []string{"john@example.com", "123-45-6789", "192.168.1.1"} {
		if strings.Contains(res.Masked, raw) {
			t.Errorf("masked text still contains %q", raw)
		}
	}
	for _, ph := range []string{"<EMAIL_1>", "<PHONE_1>", "<SSN_1>", "<CREDIT_CARD_1>", "<IP_ADDRESS_1>"} {
		if !strings.Contains(res.Masked, ph) {
			t.Errorf("masked text missing placeholder %s:\n%s", ph, res.Masked)
		}
	}
	if res.RedactionCount != 5 {
		t.Errorf("redaction count = %d, want 5", res.RedactionCount)
	}

	if got := g.Unmask(res.Masked, "req-1"); got != text {
		t.Errorf("round trip mismatch:\n got:  %q\n want: %q", got, text)
	}
}

func TestMaskNumbersDistinctValues(t *testing.T) {
	g := pii.NewGuard(nil, pii.NewStore())

	res := g.Mask("write to a@x.com and b@y.org", "req-2")
	if !strings.Contains(res.Masked, "<EMAIL_1>") || !strings.Contains(res.Masked, "<EMAIL_2>") {
		t.Errorf("expected EMAIL_1 and EMAIL_2, got %q", res.Masked)
	}
	if res.RedactionTypes["EMAIL"] != 2 {
		t.Errorf("EMAIL count = %d, want 2", res.RedactionTypes["EMAIL"])
	}
}

func TestMaskDeduplicatesRepeatedValue(t *testing.T) {
	g := pii.NewGuard(nil, pii.NewStore())

	res := g.Mask("a@x.com wrote to a@x.com about a@x.com", "req-3")
	if res.RedactionCount != 1 {
		t.Errorf("redaction count = %d, want 1 (same value claimed once)", res.RedactionCount)
	}
	// Only the first occurrence is replaced.
	if strings.Count(res.Masked, "<EMAIL_1>") != 1 {
		t.Errorf("expected exactly one placeholder, got %q", res.Masked)
	}
	if strings.Count(res.Masked, "a@x.com") != 2 {
		t.Errorf("expected two raw occurrences to remain, got %q", res.Masked)
	}
}

func TestMaskWithRecognizer(t *testing.T) {
	rec := &stubRecognizer{entities: []pii.Entity{
		{Text: "Alice Johnson", Label: "PERSON"},
		{Text: "Acme Corp", Label: "ORG"},
		{Text: "Berlin", Label: "GPE"},
		{Text: "Tuesday", Label: "DATE"},        // unmapped label, ignored
		{Text: "<EMAIL_1>", Label: "PERSON"},    // placeholder span, skipped
	}}
	g := pii.NewGuard(rec, pii.NewStore())

	const text = "Alice Johnson of Acme Corp flew to Berlin on Tuesday, email a@x.com"
	res := g.Mask(text, "req-4")

	for _, ph := range []string{"<NAME_1>", "<ORG_1>", "<LOCATION_1>", "<EMAIL_1>"} {
		if !strings.Contains(res.Masked, ph) {
			t.Errorf("missing placeholder %s in %q", ph, res.Masked)
		}
	}
	if strings.Contains(res.Masked, "Alice") || strings.Contains(res.Masked, "Acme") {
		t.Errorf("entities not masked: %q", res.Masked)
	}
	if !strings.Contains(res.Masked, "Tuesday") {
		t.Error("unmapped DATE label must not be masked")
	}
	if res.RedactionCount != 4 {
		t.Errorf("redaction count = %d, want 4", res.RedactionCount)
	}

	if got := g.Unmask(res.Masked, "req-4"); got != text {
		t.Errorf("round trip mismatch:\n got:  %q\n want: %q", got, text)
	}
}

func TestUnmaskUnknownRequestPassesThrough(t *testing.T) {
	g := pii.NewGuard(nil, pii.NewStore())

	const text = "hello <EMAIL_1>"
	if got := g.Unmask(text, "nope"); got != text {
		t.Errorf("unknown request id must pass through, got %q", got)
	}
}

func TestClearDropsRedactionMap(t *testing.T) {
	store := pii.NewStore()
	g := pii.NewGuard(nil, store)

	res := g.Mask("mail a@x.com", "req-5")
	if store.Len() != 1 {
		t.Fatalf("store len = %d, want 1", store.Len())
	}

	g.Clear("req-5")
	if store.Len() != 0 {
		t.Errorf("store len after clear = %d, want 0", store.Len())
	}
	if got := g.Unmask(res.Masked, "req-5"); got != res.Masked {
		t.Errorf("unmask after clear must pass through, got %q", got)
	}
}

func TestStoreReap(t *testing.T) {
	store := pii.NewStore()
	g := pii.NewGuard(nil, store)

	g.Mask("mail a@x.com", "old-req")
	time.Sleep(20 * time.Millisecond)

	if n := store.Reap(time.Hour); n != 0 {
		t.Errorf("reap with long TTL removed %d entries, want 0", n)
	}
	if n := store.Reap(10 * time.Millisecond); n != 1 {
		t.Errorf("reap with short TTL removed %d entries, want 1", n)
	}
	if store.Len() != 0 {
		t.Errorf("store len after reap = %d, want 0", store.Len())
	}
}
