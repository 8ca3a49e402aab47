// Package wire implements the coordinate-encoding wire format: a compact,
// escape-safe textual encoding that packs typed field values into a single
// string, one segment per field.
//
// A segment is coordinate + value delimiter + escaped value; segments are
// joined by the field delimiter:
//
//	344^6327*Hospital Project|78^956*201|344^6330*450000
//
// Three incompatible protocol versions exist in the wild. Each is a
// Protocol value carrying its delimiters, escape set and per-version
// quirks; codec logic never branches on the version number inline.
package wire

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version identifies one wire protocol generation.
type Version int

const (
	// VersionLetter is the original letter-prefixed format
	// (O_1*value|C_1*value). Coordinates come from a fixed table.
	VersionLetter Version = 1

	// VersionNumeric is the numeric table^column format
	// (1^10*value|2^1*value) with a fixed coordinate table.
	VersionNumeric Version = 2

	// VersionDynamic is the model-id^field-id format
	// (344^6327*value) whose coordinates are sourced from a live
	// schema registry.
	VersionDynamic Version = 3
)

// Protocol is one concrete wire format strategy. All fields are fixed at
// construction; a Protocol value is immutable and safe for concurrent use.
type Protocol struct {
	Version Version
	Name    string

	// FieldDelim joins segments; ValueDelim separates a coordinate from
	// its value. CoordDelim separates the two halves of a coordinate and
	// is 0 for protocols whose coordinates contain no delimiter.
	FieldDelim byte
	ValueDelim byte
	CoordDelim byte

	// BoolTrue and BoolFalse are the exact boolean literals on the wire.
	// Decode compares against these, so encode and decode always agree.
	BoolTrue  string
	BoolFalse string

	// FloatPrecision is the number of decimals floats are rounded to on
	// encode, or -1 for exact (shortest round-trippable) formatting.
	FloatPrecision int

	// EmitEmptyStrings controls whether an empty text value produces an
	// explicit empty segment ("fetched and empty") or no segment at all.
	EmitEmptyStrings bool

	coordRe *regexp.Regexp
}

var (
	letterCoordRe  = regexp.MustCompile(`^[A-Z]+_[0-9]+$`)
	numericCoordRe = regexp.MustCompile(`^[0-9]+\^[0-9]+$`)
)

// protocols is the canonical, ordered list of wire format generations,
// oldest first. The last entry is the current default.
var protocols = []*Protocol{
	{
		Version:        VersionLetter,
		Name:           "letter",
		FieldDelim:     '|',
		ValueDelim:     '*',
		BoolTrue:       "true",
		BoolFalse:      "false",
		FloatPrecision: 2,
		coordRe:        letterCoordRe,
	},
	{
		Version:        VersionNumeric,
		Name:           "numeric",
		FieldDelim:     '|',
		ValueDelim:     '*',
		CoordDelim:     '^',
		BoolTrue:       "TRUE",
		BoolFalse:      "FALSE",
		FloatPrecision: -1,
		coordRe:        numericCoordRe,
	},
	{
		Version:          VersionDynamic,
		Name:             "dynamic",
		FieldDelim:       '|',
		ValueDelim:       '*',
		CoordDelim:       '^',
		BoolTrue:         "TRUE",
		BoolFalse:        "FALSE",
		FloatPrecision:   -1,
		EmitEmptyStrings: true,
		coordRe:          numericCoordRe,
	},
}

var protocolsByVersion = func() map[Version]*Protocol {
	m := make(map[Version]*Protocol, len(protocols))
	for _, p := range protocols {
		if _, ok := m[p.Version]; ok {
			panic(fmt.Sprintf("duplicate protocol version %d", p.Version))
		}
		m[p.Version] = p
	}
	return m
}()

// ProtocolFor returns the protocol for a version number.
func ProtocolFor(v Version) (*Protocol, bool) {
	p, ok := protocolsByVersion[v]
	return p, ok
}

// Default returns the newest protocol generation.
func Default() *Protocol {
	return protocols[len(protocols)-1]
}

// Coordinate is a parsed coordinate. For the numeric and dynamic protocols
// ModelID/FieldID carry the two halves; for the letter protocol Prefix and
// Ordinal do.
type Coordinate struct {
	Raw     string
	ModelID int64
	FieldID int64
	Prefix  string
	Ordinal int64
}

// FormatCoordinate renders a modelID^fieldID coordinate. It is only
// meaningful for the numeric and dynamic protocols; the letter protocol's
// coordinates come from a fixed table and are never synthesized.
func (p *Protocol) FormatCoordinate(modelID, fieldID int64) string {
	if p.CoordDelim == 0 {
		return ""
	}
	return strconv.FormatInt(modelID, 10) + string(p.CoordDelim) + strconv.FormatInt(fieldID, 10)
}

// ValidCoordinate reports whether text is a well-formed coordinate for
// this protocol.
func (p *Protocol) ValidCoordinate(text string) bool {
	return p.coordRe.MatchString(text)
}

// ParseCoordinate parses a coordinate string, returning ok=false when the
// text is not a well-formed coordinate for this protocol.
func (p *Protocol) ParseCoordinate(text string) (Coordinate, bool) {
	if !p.coordRe.MatchString(text) {
		return Coordinate{}, false
	}
	c := Coordinate{Raw: text}
	if p.CoordDelim != 0 {
		idx := strings.IndexByte(text, p.CoordDelim)
		modelID, err1 := strconv.ParseInt(text[:idx], 10, 64)
		fieldID, err2 := strconv.ParseInt(text[idx+1:], 10, 64)
		if err1 != nil || err2 != nil {
			return Coordinate{}, false
		}
		c.ModelID, c.FieldID = modelID, fieldID
		return c, true
	}
	idx := strings.IndexByte(text, '_')
	n, err := strconv.ParseInt(text[idx+1:], 10, 64)
	if err != nil {
		return Coordinate{}, false
	}
	c.Prefix, c.Ordinal = text[:idx], n
	return c, true
}
