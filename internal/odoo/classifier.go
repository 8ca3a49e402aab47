package odoo

import (
	"regexp"
	"strings"
)

// ErrorKind is the classified shape of a source-system error.
type ErrorKind int

const (
	// KindOther is any error the classifier does not recognize;
	// callers propagate it immediately.
	KindOther ErrorKind = iota

	// KindSecurity is a permission error naming the denied field(s).
	KindSecurity

	// KindCompute is a field computation failure naming the field(s).
	KindCompute

	// KindSingleton is the known failure mode where a field's compute
	// breaks when evaluated over more than one record at once. It names
	// no field, so the retry loop falls back to bisection.
	KindSingleton
)

func (k ErrorKind) String() string {
	switch k {
	case KindSecurity:
		return "security"
	case KindCompute:
		return "compute"
	case KindSingleton:
		return "singleton"
	default:
		return "other"
	}
}

// Classification is the structured result of parsing an error.
type Classification struct {
	Kind   ErrorKind
	Fields []string
}

// ErrorClassifier turns natural-language source system errors into a
// structured classification. The string-matching heuristics stay behind
// this interface so they can be swapped per source-system version without
// touching the retry state machine.
type ErrorClassifier interface {
	Classify(err error) Classification
}

// Classifier is the default classifier for Odoo-style error text.
type Classifier struct{}

var (
	// Access errors: `You do not have access to the field(s) "x", "y" on crm.lead`,
	// or `The requested operation can not be completed due to security restrictions. (fields: x, y)`.
	accessPhraseRe = regexp.MustCompile(`(?i)(access(?:\s+to)?\s+(?:the\s+)?fields?|security restriction)`)

	// Compute errors: `Error while computing field(s) crm.lead.score`.
	computePhraseRe = regexp.MustCompile(`(?i)(error while (?:computing|evaluating)|compute[sd]? method failed)`)

	// Singleton errors: `Expected singleton: crm.lead(3, 7)`.
	singletonRe = regexp.MustCompile(`(?i)expected singleton`)

	// Field identifiers quoted or dotted inside the message.
	quotedFieldRe = regexp.MustCompile(`["']([a-z_][a-z0-9_]*)["']`)
	dottedFieldRe = regexp.MustCompile(`[a-z_][a-z0-9_]*(?:\.[a-z_][a-z0-9_]*)+\.([a-z_][a-z0-9_]*)`)
	parenListRe   = regexp.MustCompile(`\(fields?:\s*([a-z0-9_,\s]+)\)`)
)

// Classify parses one error. AccessDenied-style errors are only treated
// as restrictions when at least one field name can be extracted;
// otherwise they propagate as fatal.
func (Classifier) Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindOther}
	}
	msg := err.Error()

	if singletonRe.MatchString(msg) {
		return Classification{Kind: KindSingleton}
	}
	if accessPhraseRe.MatchString(msg) {
		if fields := extractFields(msg); len(fields) > 0 {
			return Classification{Kind: KindSecurity, Fields: fields}
		}
		return Classification{Kind: KindOther}
	}
	if computePhraseRe.MatchString(msg) {
		if fields := extractFields(msg); len(fields) > 0 {
			return Classification{Kind: KindCompute, Fields: fields}
		}
		// A compute failure that names no field behaves like the
		// singleton case: only bisection can pin it down.
		return Classification{Kind: KindSingleton}
	}
	return Classification{Kind: KindOther}
}

func extractFields(msg string) []string {
	seen := make(map[string]bool)
	var fields []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || name == "id" || seen[name] {
			return
		}
		seen[name] = true
		fields = append(fields, name)
	}

	if m := parenListRe.FindStringSubmatch(msg); m != nil {
		for _, name := range strings.Split(m[1], ",") {
			add(name)
		}
	}
	for _, m := range quotedFieldRe.FindAllStringSubmatch(msg, -1) {
		add(m[1])
	}
	for _, m := range dottedFieldRe.FindAllStringSubmatch(msg, -1) {
		add(m[1])
	}
	return fields
}
