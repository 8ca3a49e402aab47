package wire

import (
	"math"
	"strconv"
	"strings"
)

// RestrictedMarker is the wire literal substituted for fields the source
// system refused to serve. It is distinct from an empty string so decode
// can tell "restricted" apart from "fetched and empty".
const RestrictedMarker = "__RESTRICTED__"

// RestrictedDisplay is the human-readable rendering of RestrictedMarker.
const RestrictedDisplay = "[API Restricted]"

// pointIDSpan leaves room for ten million records per model so data point
// identifiers never collide with schema-entry identifiers (plain field ids).
const pointIDSpan = 10_000_000

// PointID synthesizes the vector store point identifier for a record.
func PointID(modelID, recordID int64) int64 {
	return modelID*pointIDSpan + recordID
}

// Escape backslash-escapes the protocol's structural characters. The
// backslash itself is escaped first, then the field delimiter, the value
// delimiter, and the coordinate delimiter, in that fixed order. Unescape
// reverses the order exactly; changing it silently corrupts values that
// contain literal backslashes.
func (p *Protocol) Escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, string(p.FieldDelim), `\`+string(p.FieldDelim))
	s = strings.ReplaceAll(s, string(p.ValueDelim), `\`+string(p.ValueDelim))
	if p.CoordDelim != 0 {
		s = strings.ReplaceAll(s, string(p.CoordDelim), `\`+string(p.CoordDelim))
	}
	return s
}

// Unescape reverses Escape. See Escape for why the order matters.
func (p *Protocol) Unescape(s string) string {
	if p.CoordDelim != 0 {
		s = strings.ReplaceAll(s, `\`+string(p.CoordDelim), string(p.CoordDelim))
	}
	s = strings.ReplaceAll(s, `\`+string(p.ValueDelim), string(p.ValueDelim))
	s = strings.ReplaceAll(s, `\`+string(p.FieldDelim), string(p.FieldDelim))
	s = strings.ReplaceAll(s, `\\`, `\`)
	return s
}

// SplitFields splits an encoded payload into raw segments at unescaped
// field delimiters. Escapes are left intact; callers unescape after the
// final split.
func (p *Protocol) SplitFields(payload string) []string {
	return splitUnescaped(payload, p.FieldDelim)
}

// SplitSegment splits one raw segment into its coordinate and raw value at
// the first unescaped value delimiter. ok is false when the segment has no
// value delimiter at all.
func (p *Protocol) SplitSegment(segment string) (coord, rawValue string, ok bool) {
	idx := indexUnescaped(segment, p.ValueDelim)
	if idx < 0 {
		return "", "", false
	}
	return segment[:idx], segment[idx+1:], true
}

func splitUnescaped(s string, delim byte) []string {
	var parts []string
	var cur strings.Builder
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			cur.WriteByte(c)
			escaped = false
		case c == '\\':
			cur.WriteByte(c)
			escaped = true
		case c == delim:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(parts, cur.String())
}

func indexUnescaped(s string, delim byte) int {
	escaped := false
	for i := 0; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == delim:
			return i
		}
	}
	return -1
}

// EncodeValue turns one typed value into its wire representation. ok is
// false when the field's segment must be omitted entirely (value absent
// from the source, or empty under a protocol that omits empty strings).
// Omission means "field was not attempted"; an empty value after the
// delimiter means "fetched and is empty".
func (p *Protocol) EncodeValue(v any, ft FieldType) (string, bool) {
	switch ft {
	case FieldBoolean:
		// Strict identity to true; anything else is FALSE. Boolean
		// segments are always emitted; false is meaningful here.
		if b, isBool := v.(bool); isBool && b {
			return p.BoolTrue, true
		}
		return p.BoolFalse, true

	case FieldMany2one:
		id, ok := many2oneID(v)
		if !ok {
			return "", false
		}
		return strconv.FormatInt(id, 10), true

	case FieldOne2many, FieldMany2many:
		ids, ok := idList(v)
		if !ok {
			return "", false
		}
		// An empty relation list encodes as the literal "[]", never
		// omitted; the distinction from "not fetched" is load-bearing.
		return formatIDList(ids), true

	case FieldInteger:
		n, ok := asInt64(v)
		if !ok {
			return "", false
		}
		return strconv.FormatInt(n, 10), true

	case FieldFloat:
		f, ok := asFloat64(v)
		if !ok {
			return "", false
		}
		return strconv.FormatFloat(f, 'f', p.FloatPrecision, 64), true

	default: // char, text, selection, date, datetime, binary
		s, ok := asString(v)
		if !ok {
			return "", false
		}
		if strings.TrimSpace(s) == "" {
			if !p.EmitEmptyStrings {
				return "", false
			}
			return "", true
		}
		return p.Escape(s), true
	}
}

// DecodeValue turns one raw (still escaped) segment value back into a
// typed Go value. It is total: malformed numeric text surfaces as NaN
// rather than being swallowed, and everything unrecognized passes through
// as the unescaped string.
func (p *Protocol) DecodeValue(raw string, ft FieldType) any {
	text := p.Unescape(raw)
	if text == RestrictedMarker {
		return RestrictedDisplay
	}
	switch ft {
	case FieldBoolean:
		return text == p.BoolTrue

	case FieldInteger, FieldMany2one:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return math.NaN()
		}
		return n

	case FieldFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return math.NaN()
		}
		return f

	case FieldOne2many, FieldMany2many:
		ids, ok := parseIDList(text)
		if !ok {
			return text
		}
		return ids

	default:
		return text
	}
}

// many2oneID extracts the target id from a to-one relation value. The
// source system represents these as a [id, display_name] pair, or as the
// boolean false when unset.
func many2oneID(v any) (int64, bool) {
	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			return 0, false
		}
		return asInt64(t[0])
	case int, int64, float64:
		return asInt64(t)
	default:
		return 0, false
	}
}

// idList extracts the id list from a to-many relation value. An empty
// list is a real value; a false/nil sentinel is not.
func idList(v any) ([]int64, bool) {
	switch t := v.(type) {
	case []any:
		ids := make([]int64, 0, len(t))
		for _, e := range t {
			n, ok := asInt64(e)
			if !ok {
				return nil, false
			}
			ids = append(ids, n)
		}
		return ids, true
	case []int64:
		return t, true
	case []int:
		ids := make([]int64, len(t))
		for i, n := range t {
			ids[i] = int64(n)
		}
		return ids, true
	default:
		return nil, false
	}
}

func formatIDList(ids []int64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	b.WriteByte(']')
	return b.String()
}

func parseIDList(text string) ([]int64, bool) {
	if len(text) < 2 || text[0] != '[' || text[len(text)-1] != ']' {
		return nil, false
	}
	inner := text[1 : len(text)-1]
	if inner == "" {
		return []int64{}, true
	}
	parts := strings.Split(inner, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, false
		}
		ids = append(ids, n)
	}
	return ids, true
}

func asInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		return int64(t), true
	case float32:
		return int64(t), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case nil:
		return "", false
	case bool:
		// The source system uses false as its "unset" sentinel for
		// non-boolean fields.
		return "", false
	default:
		return "", false
	}
}
