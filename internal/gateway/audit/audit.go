// Package audit records the per-request processing trail.
//
// Every request accumulates an ordered list of entries, one per pipeline
// stage that ran, so that a reviewer can reconstruct exactly what happened
// to a prompt: which guardrails fired, what was masked, where it was routed
// and what it cost. The trail is shipped to DataHaven after the response is
// returned; shipping failures never affect the client.
package audit

import (
	"sync"
	"time"
)

// Stage names, in pipeline order. These are wire-visible identifiers: they
// appear in audit entries and in DataHaven log payloads, so they must not
// change spelling.
const (
	StagePolicyFetch      = "policy_fetch"
	StageInputGuardrails  = "input_guardrails"
	StagePIIGuard         = "pii_guard"
	StageMemoryRetrieval  = "memory_retrieval"
	StagePromptBuild      = "prompt_build"
	StagePromptCompress   = "prompt_compress"
	StageRouting          = "routing"
	StageInference        = "inference"
	StageOutputGuardrails = "output_guardrails"
	StagePostProcess      = "post_process"
	StageMemoryStore      = "memory_store"
	StageDataHavenLog     = "datahaven_log"
)

// Entry is a single audit record for one pipeline stage.
type Entry struct {
	RequestID string         `json:"request_id"`
	Stage     string         `json:"stage"`
	Detail    map[string]any `json:"detail"`
	Timestamp time.Time      `json:"timestamp"`
}

// Trail is the ordered audit record of one request. It is safe for
// concurrent use: background stages (memory store, DataHaven shipping)
// may append while the handler goroutine reads.
type Trail struct {
	mu        sync.Mutex
	requestID string
	entries   []Entry
	now       func() time.Time
}

// NewTrail returns an empty trail for the given request.
func NewTrail(requestID string) *Trail {
	return &Trail{requestID: requestID, now: time.Now}
}

// Record appends an entry for the given stage. The detail map is stored as
// given; callers must not mutate it afterwards.
func (t *Trail) Record(stage string, detail map[string]any) {
	if detail == nil {
		detail = map[string]any{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{
		RequestID: t.requestID,
		Stage:     stage,
		Detail:    detail,
		Timestamp: t.now().UTC(),
	})
}

// RequestID returns the request this trail belongs to.
func (t *Trail) RequestID() string {
	return t.requestID
}

// Entries returns a copy of the recorded entries in insertion order.
func (t *Trail) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of recorded entries.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
