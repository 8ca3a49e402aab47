package odoo

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
)

// DefaultMaxRetries bounds how many reduced-field re-attempts one fetch
// may make before giving up.
const DefaultMaxRetries = 5

// RestrictionReason says why the source system refused a field.
type RestrictionReason string

const (
	ReasonSecurity RestrictionReason = "security_restriction"
	ReasonCompute  RestrictionReason = "compute_error"
	ReasonUnknown  RestrictionReason = "unknown"
)

// FieldRestriction records a field the source system refused to serve,
// with the batch offset it was discovered at for audit.
type FieldRestriction struct {
	FieldName          string            `json:"field_name"`
	Reason             RestrictionReason `json:"reason"`
	DiscoveredAtOffset int               `json:"discovered_at_offset"`
}

// Fetcher is the slice of the RPC client the guard needs.
type Fetcher interface {
	SearchRead(ctx context.Context, model string, domain []any, fields []string, offset, limit int) ([]map[string]any, error)
}

// FetchGuard wraps bulk fetches with the field-restriction retry loop:
// on a recognized restriction error it removes the offending fields and
// retries; on a singleton-style error that names no field it bisects,
// probing fields one at a time. Restrictions persist for the guard's
// lifetime (one sync run) so later batches skip bad fields proactively.
//
// The guard is deliberately not safe for concurrent use: a sync run is
// single-flight, which keeps the restricted-field set consistent without
// locking.
type FetchGuard struct {
	src        Fetcher
	classifier ErrorClassifier
	maxRetries int

	restricted   map[string]bool
	restrictions []FieldRestriction
}

// NewFetchGuard creates a guard. maxRetries <= 0 selects the default.
func NewFetchGuard(src Fetcher, classifier ErrorClassifier, maxRetries int) *FetchGuard {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if classifier == nil {
		classifier = Classifier{}
	}
	return &FetchGuard{
		src:        src,
		classifier: classifier,
		maxRetries: maxRetries,
		restricted: make(map[string]bool),
	}
}

// Restrictions returns every restriction discovered so far, in discovery
// order.
func (g *FetchGuard) Restrictions() []FieldRestriction {
	out := make([]FieldRestriction, len(g.restrictions))
	copy(out, g.restrictions)
	return out
}

// RestrictedFields returns the names of all restricted fields, sorted.
func (g *FetchGuard) RestrictedFields() []string {
	names := make([]string, 0, len(g.restricted))
	for name := range g.restricted {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fetch runs one guarded search_read. The returned records exclude
// restricted fields; the caller substitutes sentinel segments for them.
func (g *FetchGuard) Fetch(ctx context.Context, model string, domain []any, fields []string, offset, limit int) ([]map[string]any, error) {
	attempt := g.pruneRestricted(fields)

	for retries := 0; ; retries++ {
		if len(withoutID(attempt)) == 0 {
			return nil, fmt.Errorf("fetching %s at offset %d: every field was restricted (%s)",
				model, offset, strings.Join(g.RestrictedFields(), ", "))
		}

		records, err := g.src.SearchRead(ctx, model, domain, attempt, offset, limit)
		if err == nil {
			return records, nil
		}

		cls := g.classifier.Classify(err)
		if cls.Kind == KindOther {
			return nil, err
		}
		if retries >= g.maxRetries {
			return nil, fmt.Errorf("fetching %s at offset %d: retry budget exhausted after removing [%s]: %w",
				model, offset, strings.Join(g.RestrictedFields(), ", "), err)
		}

		switch cls.Kind {
		case KindSecurity, KindCompute:
			named := g.intersect(cls.Fields, attempt)
			if len(named) == 0 {
				// The error names only fields we are not even asking
				// for; retrying the same request would loop forever.
				return nil, err
			}
			reason := ReasonSecurity
			if cls.Kind == KindCompute {
				reason = ReasonCompute
			}
			for _, name := range named {
				g.restrict(name, reason, offset)
			}
			attempt = g.pruneRestricted(attempt)

		case KindSingleton:
			safe, err := g.bisect(ctx, model, domain, attempt, offset)
			if err != nil {
				return nil, err
			}
			attempt = safe
		}
	}
}

// bisect probes each candidate field on its own, with a request shaped to
// return multiple records (the singleton failure only manifests with two
// or more) and classifies every field as safe or problematic.
func (g *FetchGuard) bisect(ctx context.Context, model string, domain []any, fields []string, offset int) ([]string, error) {
	const probeLimit = 2

	safe := []string{"id"}
	found := 0
	for _, name := range withoutID(fields) {
		_, err := g.src.SearchRead(ctx, model, domain, []string{"id", name}, 0, probeLimit)
		if err == nil {
			safe = append(safe, name)
			continue
		}
		cls := g.classifier.Classify(err)
		if cls.Kind == KindOther {
			return nil, fmt.Errorf("probing field %s on %s: %w", name, model, err)
		}
		g.restrict(name, ReasonCompute, offset)
		found++
	}
	if found == 0 {
		// Every field probed clean yet the combined fetch failed: the
		// error is not field-local, so recovery is impossible here.
		return nil, fmt.Errorf("bisection found no problematic field on %s at offset %d", model, offset)
	}
	return safe, nil
}

func (g *FetchGuard) restrict(name string, reason RestrictionReason, offset int) {
	if g.restricted[name] {
		return
	}
	g.restricted[name] = true
	g.restrictions = append(g.restrictions, FieldRestriction{
		FieldName:          name,
		Reason:             reason,
		DiscoveredAtOffset: offset,
	})
	log.Printf("odoo: field %s restricted (%s), excluded for the rest of the run", name, reason)
}

func (g *FetchGuard) pruneRestricted(fields []string) []string {
	out := make([]string, 0, len(fields))
	for _, name := range fields {
		if !g.restricted[name] {
			out = append(out, name)
		}
	}
	return out
}

func (g *FetchGuard) intersect(named, attempt []string) []string {
	asked := make(map[string]bool, len(attempt))
	for _, name := range attempt {
		asked[name] = true
	}
	var out []string
	for _, name := range named {
		if asked[name] && !g.restricted[name] {
			out = append(out, name)
		}
	}
	return out
}

func withoutID(fields []string) []string {
	out := make([]string, 0, len(fields))
	for _, name := range fields {
		if name != "id" {
			out = append(out, name)
		}
	}
	return out
}
