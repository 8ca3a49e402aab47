package syncer

import "sort"

// Phase tracks where a schema sync run currently is. Phases only move
// forward; a run that errors stops in place and never commits.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseLoadingPrevious
	PhaseComputingCurrent
	PhaseDiffing
	PhaseApplying
	PhaseCommitted
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseLoadingPrevious:
		return "loading_previous"
	case PhaseComputingCurrent:
		return "computing_current"
	case PhaseDiffing:
		return "diffing"
	case PhaseApplying:
		return "applying"
	case PhaseCommitted:
		return "committed"
	default:
		return "unknown"
	}
}

// SchemaDiff classifies every field coordinate relative to the last
// committed run. Slices are sorted for deterministic output.
type SchemaDiff struct {
	Added     []string
	Modified  []string
	Deleted   []string
	Unchanged []string
}

// Empty reports whether the diff requires no apply work.
func (d SchemaDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Deleted) == 0
}

// DiffChecksums compares the current checksum set against the previous
// one. A nil previous set means first run: everything is added.
func DiffChecksums(previous, current map[string]string) SchemaDiff {
	var d SchemaDiff
	for coord, hash := range current {
		prev, ok := previous[coord]
		switch {
		case !ok:
			d.Added = append(d.Added, coord)
		case prev != hash:
			d.Modified = append(d.Modified, coord)
		default:
			d.Unchanged = append(d.Unchanged, coord)
		}
	}
	for coord := range previous {
		if _, ok := current[coord]; !ok {
			d.Deleted = append(d.Deleted, coord)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Modified)
	sort.Strings(d.Deleted)
	sort.Strings(d.Unchanged)
	return d
}
