package syncer

import (
	"context"
	"errors"

	"github.com/mbartocci/odoovec/internal/embed"
	"github.com/mbartocci/odoovec/internal/odoo"
	"github.com/mbartocci/odoovec/internal/schema"
	"github.com/mbartocci/odoovec/internal/vector"
	"github.com/mbartocci/odoovec/internal/wire"
)

// ErrAlreadyRunning is returned when a sync of the same kind is still in
// flight. Callers report it; they never treat it as a failed run.
var ErrAlreadyRunning = errors.New("sync already running")

// DefaultBatchSize is the record fetch batch size when none is configured.
const DefaultBatchSize = 200

// Progress reports sync progress between phases. Total is zero when the
// overall size is not known upfront.
type Progress func(stage string, done, total int)

// Config wires an Engine. Proto, Loader, Embedder and Store are
// mandatory; Fetcher is only needed for data syncs.
type Config struct {
	Proto        *wire.Protocol
	Loader       *schema.Loader
	Embedder     embed.Embedder
	Store        vector.Store
	Fetcher      odoo.Fetcher
	Classifier   odoo.ErrorClassifier
	ChecksumPath string

	// SchemaHash returns the current schema source hash, used for the
	// fast no-change short-circuit. Nil disables the short-circuit.
	SchemaHash func() (string, error)

	BatchSize  int
	MaxRetries int
}

// Engine runs schema and record syncs. Safe for concurrent use; the
// internal guard serializes runs of the same kind.
type Engine struct {
	cfg   Config
	guard runGuard
}

// New creates a sync engine.
func New(cfg Config) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = odoo.DefaultMaxRetries
	}
	if cfg.Classifier == nil {
		cfg.Classifier = odoo.Classifier{}
	}
	return &Engine{cfg: cfg}
}

// ensureCollection sizes the collection from the first vector seen.
func (e *Engine) ensureCollection(ctx context.Context, vectors [][]float32) error {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil
	}
	return e.cfg.Store.EnsureCollection(ctx, len(vectors[0]))
}
