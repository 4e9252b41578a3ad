// Package pii implements reversible PII tokenization.
//
// Mask replaces detected PII values with <TYPE_N> placeholders and keeps the
// reverse mapping keyed by request ID, so the model only ever sees
// placeholders while the client gets the original values back via Unmask.
// Detection runs a fixed-order regex pass first, then an optional entity
// recognizer pass for names, organisations and locations.
package pii

import (
	"fmt"
	"regexp"
	"strings"
)

// regexTypes fixes the detection order: a value claimed by an earlier type
// never re-matches as a later one, and placeholder numbering is stable.
var regexTypes = []string{"EMAIL", "PHONE", "SSN", "CREDIT_CARD", "IP_ADDRESS"}

var regexPatterns = map[string]*regexp.Regexp{
	"EMAIL":       regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
	"PHONE":       regexp.MustCompile(`\b(\+?\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
	"SSN":         regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	"CREDIT_CARD": regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`),
	"IP_ADDRESS":  regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`),
}

// entityLabelMap translates recognizer labels into placeholder types.
// Labels outside this map are ignored.
var entityLabelMap = map[string]string{
	"PERSON": "NAME",
	"ORG":    "ORG",
	"GPE":    "LOCATION",
}

// Entity is a named entity found by an EntityRecognizer.
type Entity struct {
	Text  string
	Label string // PERSON, ORG, GPE
}

// EntityRecognizer finds named entities in text. Implementations back onto
// an external NER service or model; a nil recognizer means regex-only
// detection, which is the default deployment mode.
type EntityRecognizer interface {
	Recognize(text string) []Entity
}

// Result describes one masking pass, in the shape the audit trail records.
type Result struct {
	Masked         string
	RedactionCount int
	RedactionTypes map[string]int    // type → count
	RedactionMap   map[string]string // placeholder → original
}

// Detail renders the result as an audit detail map. The redaction map itself
// is included so an authorized reviewer can reverse the masking.
func (r Result) Detail() map[string]any {
	return map[string]any{
		"redaction_count": r.RedactionCount,
		"redaction_types": r.RedactionTypes,
		"redaction_map":   r.RedactionMap,
	}
}

// Guard masks and unmasks PII, holding per-request redaction maps in a
// Store until the request completes (or the reaper evicts them).
type Guard struct {
	recognizer EntityRecognizer
	store      *Store
}

// NewGuard returns a Guard using the given recognizer (nil for regex-only)
// and store.
func NewGuard(recognizer EntityRecognizer, store *Store) *Guard {
	return &Guard{recognizer: recognizer, store: store}
}

// Mask replaces PII in text with <TYPE_N> placeholders and records the
// reverse mapping under requestID. Each distinct value is masked once: the
// first occurrence is replaced and duplicates of an already-claimed value
// are skipped.
func (g *Guard) Mask(text, requestID string) Result {
	masked := text
	counters := map[string]int{}
	redactions := map[string]string{}
	var order []string // placeholder insertion order, for deterministic unmask

	claim := func(typ, original string) {
		for _, v := range redactions {
			if v == original {
				return
			}
		}
		counters[typ]++
		placeholder := fmt.Sprintf("<%s_%d>", typ, counters[typ])
		redactions[placeholder] = original
		order = append(order, placeholder)
		masked = strings.Replace(masked, original, placeholder, 1)
	}

	for _, typ := range regexTypes {
		for _, match := range regexPatterns[typ].FindAllString(masked, -1) {
			claim(typ, match)
		}
	}

	if g.recognizer != nil {
		for _, ent := range g.recognizer.Recognize(masked) {
			typ, ok := entityLabelMap[ent.Label]
			if !ok {
				continue
			}
			// Never re-mask a span that is already a placeholder.
			if strings.HasPrefix(ent.Text, "<") && strings.HasSuffix(ent.Text, ">") {
				continue
			}
			claim(typ, ent.Text)
		}
	}

	g.store.put(requestID, redactions, order)

	return Result{
		Masked:         masked,
		RedactionCount: len(redactions),
		RedactionTypes: counters,
		RedactionMap:   redactions,
	}
}

// Unmask restores the original values for requestID's placeholders. Text
// without placeholders, or an unknown request ID, passes through unchanged.
func (g *Guard) Unmask(text, requestID string) string {
	redactions, order := g.store.get(requestID)
	for _, placeholder := range order {
		text = strings.ReplaceAll(text, placeholder, redactions[placeholder])
	}
	return text
}

// Clear drops the redaction map for requestID.
func (g *Guard) Clear(requestID string) {
	g.store.delete(requestID)
}
