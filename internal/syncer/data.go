package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/mbartocci/odoovec/internal/odoo"
	"github.com/mbartocci/odoovec/internal/record"
	"github.com/mbartocci/odoovec/internal/vector"
)

// DataResult is the outcome of one record sync run for a single model.
type DataResult struct {
	RunID           string
	Model           string
	Success         bool
	Fetched         int
	Upserted        int
	Batches         int
	MissingInSchema []string
	Restrictions    []odoo.FieldRestriction
	Warnings        []string
	Duration        time.Duration
}

// SyncModelData fetches every record of a model through the
// restriction-aware retry loop, encodes each into its coordinate
// payload, embeds the payloads and upserts the points. A batchSize of
// zero or less uses the configured fetch batch size.
//
// A sample record with fields unknown to the registry fails the run
// before any fetch: Success is false and the names land in
// MissingInSchema. Infrastructure failures return an error instead.
func (e *Engine) SyncModelData(ctx context.Context, model string, batchSize int, progress Progress) (DataResult, error) {
	// A schema-file-only configuration has no ERP connection; schema
	// syncs still work but record fetches cannot.
	if e.cfg.Fetcher == nil {
		return DataResult{}, errors.New("data sync needs an ERP connection and none is configured")
	}

	key := "data:" + model
	if !e.guard.tryLock(key) {
		return DataResult{}, ErrAlreadyRunning
	}
	defer e.guard.unlock(key)

	if progress == nil {
		progress = func(string, int, int) {}
	}
	if batchSize <= 0 {
		batchSize = e.cfg.BatchSize
	}
	start := time.Now()
	res := DataResult{RunID: uuid.NewString(), Model: model}

	reg, err := e.cfg.Loader.Registry(ctx)
	if err != nil {
		return res, fmt.Errorf("loading schema: %w", err)
	}
	encMap, err := record.BuildEncodingMap(reg, model)
	if err != nil {
		return res, fmt.Errorf("building encoding map for %s: %w", model, err)
	}

	if missing, err := e.validateSample(ctx, model, encMap, &res); err != nil {
		return res, err
	} else if len(missing) > 0 {
		res.MissingInSchema = missing
		res.Duration = time.Since(start)
		return res, nil
	}
	progress("validated", 0, 0)

	guard := odoo.NewFetchGuard(e.cfg.Fetcher, e.cfg.Classifier, e.cfg.MaxRetries)
	encoder := record.NewEncoder(e.cfg.Proto, encMap)
	fields := encMap.FieldNames()

	for offset := 0; ; offset += batchSize {
		records, err := guard.Fetch(ctx, model, nil, fields, offset, batchSize)
		if err != nil {
			return res, fmt.Errorf("fetching %s at offset %d: %w", model, offset, err)
		}
		if len(records) == 0 {
			break
		}
		res.Fetched += len(records)
		res.Batches++

		// Restrictions discovered in this batch apply to the encoder
		// from here on, so every record still carries a segment for
		// the field, with the sentinel value.
		for _, name := range guard.RestrictedFields() {
			encoder.Restrict(name)
		}

		encoded, err := encoder.EncodeBatch(records)
		if err != nil {
			return res, fmt.Errorf("encoding %s batch at offset %d: %w", model, offset, err)
		}
		progress("encoded", res.Fetched, 0)

		if err := e.upsertRecords(ctx, encoded); err != nil {
			return res, err
		}
		res.Upserted += len(encoded)
		progress("upserted", res.Upserted, 0)

		if len(records) < batchSize {
			break
		}
	}

	res.Success = true
	res.Restrictions = guard.Restrictions()
	res.Duration = time.Since(start)
	log.Printf("data sync %s: model=%s fetched=%d upserted=%d restricted=%d",
		res.RunID, model, res.Fetched, res.Upserted, len(res.Restrictions))
	return res, nil
}

// validateSample fetches one record with every readable field and checks
// that each returned field name is known to the encoding map.
func (e *Engine) validateSample(ctx context.Context, model string, encMap *record.EncodingMap, res *DataResult) ([]string, error) {
	sample, err := e.cfg.Fetcher.SearchRead(ctx, model, nil, nil, 0, 1)
	if err != nil {
		c := e.cfg.Classifier.Classify(err)
		if c.Kind == odoo.KindOther {
			return nil, fmt.Errorf("fetching sample record for %s: %w", model, err)
		}
		// Restricted sample reads are survivable; the batched fetch
		// handles them field by field.
		res.Warnings = append(res.Warnings, fmt.Sprintf("sample validation skipped: %v", err))
		return nil, nil
	}
	if len(sample) == 0 {
		return nil, nil
	}
	return record.ValidateSample(encMap, sample[0]), nil
}

func (e *Engine) upsertRecords(ctx context.Context, encoded []record.EncodedRecord) error {
	if len(encoded) == 0 {
		return nil
	}
	texts := make([]string, len(encoded))
	for i, rec := range encoded {
		texts[i] = rec.Payload
	}
	vectors, err := e.cfg.Embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d records: %w", len(encoded), err)
	}
	if err := e.ensureCollection(ctx, vectors); err != nil {
		return fmt.Errorf("preparing collection: %w", err)
	}

	points := make([]vector.Point, len(encoded))
	for i, rec := range encoded {
		points[i] = vector.Point{
			ID:     uint64(rec.PointID()),
			Vector: vectors[i],
			Payload: vector.Payload{
				Kind:     vector.KindData,
				Model:    rec.Model,
				ModelID:  rec.ModelID,
				RecordID: rec.RecordID,
				Encoded:  rec.Payload,
			},
		}
	}
	if err := e.cfg.Store.UpsertPoints(ctx, points); err != nil {
		return fmt.Errorf("upserting %d record points: %w", len(points), err)
	}
	return nil
}
