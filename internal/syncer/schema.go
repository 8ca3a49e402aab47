package syncer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/mbartocci/odoovec/internal/schema"
	"github.com/mbartocci/odoovec/internal/vector"
)

// SchemaResult is the outcome of one schema sync run.
type SchemaResult struct {
	RunID    string
	Phase    Phase
	Skipped  bool
	Diff     SchemaDiff
	Embedded int
	Deleted  int
	Warnings []string
	Duration time.Duration
}

// SyncSchema diffs the current field descriptors against the persisted
// checksums, embeds and upserts added and modified fields, deletes
// points for removed fields, and commits the new checksum set. A failed
// apply leaves the previous checksum file intact so the next run retries
// the same diff.
func (e *Engine) SyncSchema(ctx context.Context) (SchemaResult, error) {
	if !e.guard.tryLock("schema") {
		return SchemaResult{}, ErrAlreadyRunning
	}
	defer e.guard.unlock("schema")

	start := time.Now()
	res := SchemaResult{RunID: uuid.NewString(), Phase: PhaseNotStarted}

	res.Phase = PhaseLoadingPrevious
	previous := LoadChecksums(e.cfg.ChecksumPath)

	var currentHash string
	if e.cfg.SchemaHash != nil {
		h, err := e.cfg.SchemaHash()
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("schema hash unavailable: %v", err))
		} else {
			currentHash = h
		}
	}
	if previous != nil && currentHash != "" && previous.SchemaHash == currentHash {
		res.Skipped = true
		res.Phase = PhaseCommitted
		res.Duration = time.Since(start)
		log.Printf("schema sync %s: schema hash unchanged, skipping", res.RunID)
		return res, nil
	}

	res.Phase = PhaseComputingCurrent
	reg, err := e.cfg.Loader.Reload(ctx)
	if err != nil {
		return res, fmt.Errorf("loading schema: %w", err)
	}
	current := make(map[string]string, reg.Len())
	descs := make(map[string]*schema.FieldDescriptor, reg.Len())
	for _, model := range reg.Models() {
		for _, d := range reg.FieldsOf(model) {
			current[d.Coordinate] = HashText(schema.Describe(d))
			descs[d.Coordinate] = d
		}
	}

	res.Phase = PhaseDiffing
	var prevFields map[string]string
	if previous != nil {
		prevFields = previous.Fields
	}
	res.Diff = DiffChecksums(prevFields, current)

	if res.Diff.Empty() && previous != nil && previous.SchemaHash == currentHash {
		res.Phase = PhaseCommitted
		res.Duration = time.Since(start)
		return res, nil
	}

	res.Phase = PhaseApplying
	if err := e.applySchemaDiff(ctx, reg, descs, &res); err != nil {
		return res, err
	}

	if err := SaveChecksums(e.cfg.ChecksumPath, &ChecksumFile{
		SchemaHash: currentHash,
		Fields:     current,
	}); err != nil {
		return res, err
	}
	res.Phase = PhaseCommitted
	res.Duration = time.Since(start)
	log.Printf("schema sync %s: added=%d modified=%d deleted=%d unchanged=%d",
		res.RunID, len(res.Diff.Added), len(res.Diff.Modified), len(res.Diff.Deleted), len(res.Diff.Unchanged))
	return res, nil
}

func (e *Engine) applySchemaDiff(ctx context.Context, reg *schema.Registry, descs map[string]*schema.FieldDescriptor, res *SchemaResult) error {
	changed := make([]string, 0, len(res.Diff.Added)+len(res.Diff.Modified))
	changed = append(changed, res.Diff.Added...)
	changed = append(changed, res.Diff.Modified...)

	if len(changed) > 0 {
		texts := make([]string, len(changed))
		for i, coord := range changed {
			texts[i] = schema.Describe(descs[coord])
		}
		vectors, err := e.cfg.Embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding %d field descriptions: %w", len(changed), err)
		}
		if err := e.ensureCollection(ctx, vectors); err != nil {
			return fmt.Errorf("preparing collection: %w", err)
		}

		points := make([]vector.Point, len(changed))
		for i, coord := range changed {
			d := descs[coord]
			points[i] = vector.Point{
				ID:     uint64(d.FieldID),
				Vector: vectors[i],
				Payload: vector.Payload{
					Kind:        vector.KindSchema,
					Model:       d.OwnerModel,
					ModelID:     d.ModelID,
					FieldID:     d.FieldID,
					Coordinate:  d.Coordinate,
					Description: texts[i],
				},
			}
		}
		if err := e.cfg.Store.UpsertPoints(ctx, points); err != nil {
			return fmt.Errorf("upserting %d schema points: %w", len(points), err)
		}
		res.Embedded = len(points)
	}

	// Removed fields are only known by their old coordinate; the point
	// id is recovered by parsing it. Unparsable coordinates (older
	// protocol formats) leave the point behind, with a warning.
	var ids []uint64
	for _, coord := range res.Diff.Deleted {
		c, ok := reg.Protocol().ParseCoordinate(coord)
		if !ok || c.FieldID == 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("cannot derive point id for removed field %q", coord))
			continue
		}
		ids = append(ids, uint64(c.FieldID))
	}
	if err := e.cfg.Store.DeletePoints(ctx, ids); err != nil {
		return fmt.Errorf("deleting %d removed schema points: %w", len(ids), err)
	}
	res.Deleted = len(ids)
	return nil
}
