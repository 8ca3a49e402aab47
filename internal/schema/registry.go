package schema

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mbartocci/odoovec/internal/wire"
)

// Registry is an immutable snapshot of field descriptors supporting the
// three query shapes the encoder and decoder need: by exact coordinate, by
// owning model, and by foreign-key target (reverse references). Build one
// with NewRegistry; replace it wholesale on reload.
type Registry struct {
	proto        *wire.Protocol
	byCoordinate map[string]*FieldDescriptor
	byModel      map[string][]*FieldDescriptor
	modelIDs     map[string]int64
}

// NewRegistry indexes the given descriptors. Duplicate coordinates are an
// error: the coordinate is the registry's primary key.
func NewRegistry(proto *wire.Protocol, fields []FieldDescriptor) (*Registry, error) {
	r := &Registry{
		proto:        proto,
		byCoordinate: make(map[string]*FieldDescriptor, len(fields)),
		byModel:      make(map[string][]*FieldDescriptor),
		modelIDs:     make(map[string]int64),
	}
	for i := range fields {
		d := &fields[i]
		if d.Coordinate == "" {
			return nil, fmt.Errorf("field %s.%s has no coordinate", d.OwnerModel, d.FieldName)
		}
		if prev, ok := r.byCoordinate[d.Coordinate]; ok {
			return nil, fmt.Errorf("duplicate coordinate %s (%s.%s vs %s.%s)",
				d.Coordinate, prev.OwnerModel, prev.FieldName, d.OwnerModel, d.FieldName)
		}
		r.byCoordinate[d.Coordinate] = d
		r.byModel[d.OwnerModel] = append(r.byModel[d.OwnerModel], d)
		if d.ModelID != 0 {
			r.modelIDs[d.OwnerModel] = d.ModelID
		}
	}
	// Stable per-model order: field id, then name, so encoded output is
	// diffable across runs.
	for _, list := range r.byModel {
		sort.Slice(list, func(i, j int) bool {
			if list[i].FieldID != list[j].FieldID {
				return list[i].FieldID < list[j].FieldID
			}
			return list[i].FieldName < list[j].FieldName
		})
	}
	return r, nil
}

// Protocol returns the wire protocol the registry's coordinates belong to.
func (r *Registry) Protocol() *wire.Protocol { return r.proto }

// Len returns the number of registered fields.
func (r *Registry) Len() int { return len(r.byCoordinate) }

// Lookup resolves a coordinate. A miss is not an error.
func (r *Registry) Lookup(coordinate string) (*FieldDescriptor, bool) {
	d, ok := r.byCoordinate[coordinate]
	return d, ok
}

// FieldsOf returns all fields of a model in stable order. Nil when the
// model is unknown.
func (r *Registry) FieldsOf(model string) []*FieldDescriptor {
	return r.byModel[model]
}

// Field resolves one field of a model by technical name.
func (r *Registry) Field(model, name string) (*FieldDescriptor, bool) {
	for _, d := range r.byModel[model] {
		if d.FieldName == name {
			return d, true
		}
	}
	return nil, false
}

// ReferencesTo returns every many2one field, across all models, whose
// foreign-key target is the given model (the reverse-reference lookup).
func (r *Registry) ReferencesTo(model string) []*FieldDescriptor {
	var refs []*FieldDescriptor
	for _, owner := range r.Models() {
		for _, d := range r.byModel[owner] {
			if d.FieldType == wire.FieldMany2one && d.ForeignKeyTarget == model {
				refs = append(refs, d)
			}
		}
	}
	return refs
}

// IdentityCoordinate returns the coordinate the model uses for its own
// "id" field. Foreign keys targeting the model reuse this coordinate.
func (r *Registry) IdentityCoordinate(model string) (string, bool) {
	d, ok := r.Field(model, "id")
	if !ok {
		return "", false
	}
	return d.Coordinate, true
}

// ModelID returns the numeric identity of a model name, when known.
func (r *Registry) ModelID(model string) (int64, bool) {
	id, ok := r.modelIDs[model]
	return id, ok
}

// Models returns all known model names, sorted.
func (r *Registry) Models() []string {
	models := make([]string, 0, len(r.byModel))
	for m := range r.byModel {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// Source produces the full descriptor set the registry is built from.
type Source interface {
	Load(ctx context.Context) ([]FieldDescriptor, error)
}

// Loader builds the registry once and caches it process-wide. The build is
// expensive (thousands of rows), so the cache lives until Invalidate is
// called, never time-boxed.
type Loader struct {
	proto  *wire.Protocol
	source Source

	mu  sync.Mutex
	reg *Registry
}

// NewLoader creates a loader over the given source.
func NewLoader(proto *wire.Protocol, source Source) *Loader {
	return &Loader{proto: proto, source: source}
}

// Registry returns the cached registry, building it on first use.
func (l *Loader) Registry(ctx context.Context) (*Registry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reg != nil {
		return l.reg, nil
	}
	reg, err := l.build(ctx)
	if err != nil {
		return nil, err
	}
	l.reg = reg
	return reg, nil
}

// Invalidate drops the cached registry so the next Registry call rebuilds
// it. Called by the sync engine when the underlying source changed.
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.reg = nil
	l.mu.Unlock()
}

// Reload rebuilds the registry immediately and replaces the cache.
func (l *Loader) Reload(ctx context.Context) (*Registry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	reg, err := l.build(ctx)
	if err != nil {
		return nil, err
	}
	l.reg = reg
	return reg, nil
}

func (l *Loader) build(ctx context.Context) (*Registry, error) {
	fields, err := l.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading schema source: %w", err)
	}
	reg, err := NewRegistry(l.proto, fields)
	if err != nil {
		return nil, fmt.Errorf("indexing schema: %w", err)
	}
	return reg, nil
}

// StaticSource is an in-memory descriptor table, used by tests and by the
// fixed-table protocol generations.
type StaticSource []FieldDescriptor

// Load returns the table as-is.
func (s StaticSource) Load(ctx context.Context) ([]FieldDescriptor, error) {
	return []FieldDescriptor(s), nil
}
