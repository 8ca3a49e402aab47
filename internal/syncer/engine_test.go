package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mbartocci/odoovec/internal/odoo"
	"github.com/mbartocci/odoovec/internal/schema"
	"github.com/mbartocci/odoovec/internal/vector"
	"github.com/mbartocci/odoovec/internal/wire"
)

// --- fakes ---

type fakeEmbedder struct {
	calls  int
	inputs []string
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.calls++
	f.inputs = append(f.inputs, inputs...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{float32(len(inputs[i]))}
	}
	return out, nil
}

type fakeStore struct {
	ensured   int
	upserted  []vector.Point
	deleted   []uint64
	upsertErr error
}

func (f *fakeStore) EnsureCollection(ctx context.Context, size int) error {
	f.ensured = size
	return nil
}

func (f *fakeStore) UpsertPoints(ctx context.Context, points []vector.Point) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, points...)
	return nil
}

func (f *fakeStore) DeletePoints(ctx context.Context, ids []uint64) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeStore) Search(ctx context.Context, v []float32, limit int, filter vector.Filter) ([]vector.ScoredPoint, error) {
	return nil, nil
}

func (f *fakeStore) pointIDs() []uint64 {
	ids := make([]uint64, len(f.upserted))
	for i, p := range f.upserted {
		ids[i] = p.ID
	}
	return ids
}

// fakeFetcher serves canned records, slicing by offset and limit and
// projecting the requested fields. A denied field makes any multi-record
// request naming it fail with a security-style error.
type fakeFetcher struct {
	records []map[string]any
	denied  string
	calls   int
}

func (f *fakeFetcher) SearchRead(ctx context.Context, model string, domain []any, fields []string, offset, limit int) ([]map[string]any, error) {
	f.calls++
	if f.denied != "" {
		for _, name := range fields {
			if name == f.denied {
				return nil, fmt.Errorf(`You are not allowed to access field "%s" on %s`, f.denied, model)
			}
		}
	}
	if offset >= len(f.records) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.records) {
		end = len(f.records)
	}
	out := make([]map[string]any, 0, end-offset)
	for _, rec := range f.records[offset:end] {
		if len(fields) == 0 {
			out = append(out, rec)
			continue
		}
		projected := map[string]any{}
		for _, name := range fields {
			if v, ok := rec[name]; ok {
				projected[name] = v
			}
		}
		out = append(out, projected)
	}
	return out, nil
}

// --- fixture ---

func leadFields() []schema.FieldDescriptor {
	return []schema.FieldDescriptor{
		{Coordinate: "78^956", ModelID: 78, FieldID: 956, OwnerModel: "res.partner", FieldName: "id", FieldLabel: "ID", FieldType: wire.FieldInteger, StorageLocation: "res.partner.id", IsStored: true},
		{Coordinate: "344^6320", ModelID: 344, FieldID: 6320, OwnerModel: "crm.lead", FieldName: "id", FieldLabel: "ID", FieldType: wire.FieldInteger, StorageLocation: "crm.lead.id", IsStored: true},
		{Coordinate: "344^6327", ModelID: 344, FieldID: 6327, OwnerModel: "crm.lead", FieldName: "name", FieldLabel: "Opportunity", FieldType: wire.FieldChar, StorageLocation: "crm.lead.name", IsStored: true},
		{Coordinate: "344^6330", ModelID: 344, FieldID: 6330, OwnerModel: "crm.lead", FieldName: "expected_revenue", FieldLabel: "Expected Revenue", FieldType: wire.FieldFloat, StorageLocation: "crm.lead.expected_revenue", IsStored: true},
		{Coordinate: "344^6335", ModelID: 344, FieldID: 6335, OwnerModel: "crm.lead", FieldName: "partner_id", FieldLabel: "Customer", FieldType: wire.FieldMany2one, StorageLocation: "res.partner.id", IsStored: true, ForeignKeyTarget: "res.partner"},
	}
}

type mutableSource struct{ fields []schema.FieldDescriptor }

func (s *mutableSource) Load(ctx context.Context) ([]schema.FieldDescriptor, error) {
	return s.fields, nil
}

func newTestEngine(t *testing.T, src schema.Source, emb *fakeEmbedder, store *fakeStore, fetcher odoo.Fetcher) *Engine {
	t.Helper()
	proto := wire.Default()
	return New(Config{
		Proto:        proto,
		Loader:       schema.NewLoader(proto, src),
		Embedder:     emb,
		Store:        store,
		Fetcher:      fetcher,
		ChecksumPath: filepath.Join(t.TempDir(), "checksums.json"),
		BatchSize:    2,
	})
}

// --- schema sync ---

func TestSyncSchemaFirstRunAddsEverything(t *testing.T) {
	emb := &fakeEmbedder{}
	store := &fakeStore{}
	src := &mutableSource{fields: leadFields()}
	e := newTestEngine(t, src, emb, store, nil)

	res, err := e.SyncSchema(context.Background())
	if err != nil {
		t.Fatalf("SyncSchema: %v", err)
	}
	if res.Phase != PhaseCommitted {
		t.Errorf("phase = %s, want committed", res.Phase)
	}
	if len(res.Diff.Added) != 5 || len(res.Diff.Modified) != 0 || len(res.Diff.Deleted) != 0 {
		t.Errorf("diff = %+v, want 5 added", res.Diff)
	}
	if res.Embedded != 5 {
		t.Errorf("Embedded = %d, want 5", res.Embedded)
	}

	// Schema points use the raw field id.
	want := map[uint64]bool{956: true, 6320: true, 6327: true, 6330: true, 6335: true}
	for _, id := range store.pointIDs() {
		if !want[id] {
			t.Errorf("unexpected point id %d", id)
		}
		delete(want, id)
	}
	if len(want) != 0 {
		t.Errorf("missing point ids %v", want)
	}
	for _, p := range store.upserted {
		if p.Payload.Kind != vector.KindSchema {
			t.Errorf("point %d kind = %q", p.ID, p.Payload.Kind)
		}
	}

	if _, err := os.Stat(e.cfg.ChecksumPath); err != nil {
		t.Errorf("checksum file not committed: %v", err)
	}
}

func TestSyncSchemaIdempotent(t *testing.T) {
	emb := &fakeEmbedder{}
	store := &fakeStore{}
	src := &mutableSource{fields: leadFields()}
	e := newTestEngine(t, src, emb, store, nil)
	ctx := context.Background()

	if _, err := e.SyncSchema(ctx); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(e.cfg.ChecksumPath)
	if err != nil {
		t.Fatal(err)
	}
	embedsAfterFirst := emb.calls

	res, err := e.SyncSchema(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Diff.Empty() {
		t.Errorf("second run diff = %+v, want empty", res.Diff)
	}
	if emb.calls != embedsAfterFirst {
		t.Error("unchanged fields must not be re-embedded")
	}
	after, err := os.ReadFile(e.cfg.ChecksumPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("checksum file must be byte-identical after a no-change run")
	}
}

func TestSyncSchemaModifiedAndDeleted(t *testing.T) {
	emb := &fakeEmbedder{}
	store := &fakeStore{}
	src := &mutableSource{fields: leadFields()}
	e := newTestEngine(t, src, emb, store, nil)
	ctx := context.Background()

	if _, err := e.SyncSchema(ctx); err != nil {
		t.Fatal(err)
	}
	store.upserted = nil

	// Relabel one field, drop another.
	fields := leadFields()
	fields[2].FieldLabel = "Opportunity Title"
	src.fields = append(fields[:3:3], fields[4]) // drop expected_revenue

	res, err := e.SyncSchema(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Diff.Modified) != 1 || res.Diff.Modified[0] != "344^6327" {
		t.Errorf("Modified = %v, want [344^6327]", res.Diff.Modified)
	}
	if len(res.Diff.Deleted) != 1 || res.Diff.Deleted[0] != "344^6330" {
		t.Errorf("Deleted = %v, want [344^6330]", res.Diff.Deleted)
	}
	if len(res.Diff.Unchanged) != 3 {
		t.Errorf("Unchanged = %v, want 3 entries", res.Diff.Unchanged)
	}
	if len(store.deleted) != 1 || store.deleted[0] != 6330 {
		t.Errorf("deleted point ids = %v, want [6330]", store.deleted)
	}
	if len(store.upserted) != 1 || store.upserted[0].ID != 6327 {
		t.Errorf("re-embedded points = %v, want only 6327", store.pointIDs())
	}
}

func TestSyncSchemaFailedApplyKeepsPreviousChecksums(t *testing.T) {
	emb := &fakeEmbedder{}
	store := &fakeStore{}
	src := &mutableSource{fields: leadFields()}
	e := newTestEngine(t, src, emb, store, nil)
	ctx := context.Background()

	if _, err := e.SyncSchema(ctx); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(e.cfg.ChecksumPath)
	if err != nil {
		t.Fatal(err)
	}

	fields := leadFields()
	fields[2].FieldLabel = "Opportunity Title"
	src.fields = fields
	store.upsertErr = errors.New("store unavailable")

	if _, err := e.SyncSchema(ctx); err == nil {
		t.Fatal("failed apply must error")
	}
	after, err := os.ReadFile(e.cfg.ChecksumPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("failed apply must leave the previous checksum file intact")
	}

	// The next run sees the same diff again.
	store.upsertErr = nil
	res, err := e.SyncSchema(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Diff.Modified) != 1 {
		t.Errorf("retry diff = %+v, want the modified field again", res.Diff)
	}
}

func TestSyncSchemaHashShortCircuit(t *testing.T) {
	emb := &fakeEmbedder{}
	store := &fakeStore{}
	src := &mutableSource{fields: leadFields()}
	e := newTestEngine(t, src, emb, store, nil)
	e.cfg.SchemaHash = func() (string, error) { return "abc123", nil }
	ctx := context.Background()

	first, err := e.SyncSchema(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first.Skipped {
		t.Error("first run must not be skipped")
	}

	second, err := e.SyncSchema(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Skipped {
		t.Error("unchanged schema hash must short-circuit the run")
	}
	if emb.calls != 1 {
		t.Errorf("embedder called %d times, want 1", emb.calls)
	}
}

// --- checksum persistence ---

func TestLoadChecksumsTolerance(t *testing.T) {
	dir := t.TempDir()

	if cf := LoadChecksums(filepath.Join(dir, "absent.json")); cf != nil {
		t.Error("missing file must load as nil")
	}

	corrupt := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(corrupt, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if cf := LoadChecksums(corrupt); cf != nil {
		t.Error("corrupt file must load as nil, not fail")
	}

	old := filepath.Join(dir, "old.json")
	if err := os.WriteFile(old, []byte(`{"version":99,"fields":{}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if cf := LoadChecksums(old); cf != nil {
		t.Error("version mismatch must load as nil")
	}
}

func TestHashTextNormalizes(t *testing.T) {
	composed := "Propriétaire"
	decomposed := "Propriétaire"
	if HashText(composed) != HashText(decomposed) {
		t.Error("unicode normalization forms must hash identically")
	}
	if HashText("a") == HashText("b") {
		t.Error("different texts must hash differently")
	}
}

// --- data sync ---

func TestSyncModelData(t *testing.T) {
	emb := &fakeEmbedder{}
	store := &fakeStore{}
	src := &mutableSource{fields: leadFields()}
	fetcher := &fakeFetcher{records: []map[string]any{
		{"id": 12345, "name": "Hospital Project", "expected_revenue": 450000.0, "partner_id": []any{float64(201), "Acme Co"}},
		{"id": 12346, "name": "Mill Upgrade", "expected_revenue": 90000.0, "partner_id": false},
		{"id": 12347, "name": "Harbor Deal", "expected_revenue": 10.5, "partner_id": []any{float64(202), "Biltz"}},
	}}
	e := newTestEngine(t, src, emb, store, fetcher)

	var stages []string
	res, err := e.SyncModelData(context.Background(), "crm.lead", 0, func(stage string, done, total int) {
		stages = append(stages, stage)
	})
	if err != nil {
		t.Fatalf("SyncModelData: %v", err)
	}
	if !res.Success {
		t.Fatalf("result = %+v, want success", res)
	}
	if res.Fetched != 3 || res.Upserted != 3 || res.Batches != 2 {
		t.Errorf("counts = fetched %d upserted %d batches %d, want 3/3/2", res.Fetched, res.Upserted, res.Batches)
	}
	if len(stages) == 0 || stages[0] != "validated" {
		t.Errorf("stages = %v, want validated first", stages)
	}

	if len(store.upserted) != 3 {
		t.Fatalf("upserted %d points", len(store.upserted))
	}
	first := store.upserted[0]
	if first.ID != 3440012345 {
		t.Errorf("point id = %d, want 3440012345", first.ID)
	}
	if first.Payload.Kind != vector.KindData || first.Payload.Model != "crm.lead" || first.Payload.RecordID != 12345 {
		t.Errorf("payload = %+v", first.Payload)
	}
	if !strings.Contains(first.Payload.Encoded, "78^956*201") {
		t.Errorf("encoded %q must carry the target identity coordinate", first.Payload.Encoded)
	}
	if strings.Contains(first.Payload.Encoded, "Acme") {
		t.Errorf("encoded %q must not carry the display name", first.Payload.Encoded)
	}
}

func TestSyncModelDataWithoutFetcher(t *testing.T) {
	emb := &fakeEmbedder{}
	store := &fakeStore{}
	src := &mutableSource{fields: leadFields()}
	e := newTestEngine(t, src, emb, store, nil)

	res, err := e.SyncModelData(context.Background(), "crm.lead", 0, nil)
	if err == nil {
		t.Fatal("want error when no fetcher is configured")
	}
	if !strings.Contains(err.Error(), "ERP connection") {
		t.Errorf("error = %v, want it to name the missing ERP connection", err)
	}
	if res.Success {
		t.Error("run without a fetcher must not report success")
	}
	if emb.calls != 0 || len(store.upserted) != 0 {
		t.Error("run without a fetcher must not embed or upsert anything")
	}
}

func TestSyncModelDataFailsClosedOnUnknownField(t *testing.T) {
	emb := &fakeEmbedder{}
	store := &fakeStore{}
	src := &mutableSource{fields: leadFields()}
	fetcher := &fakeFetcher{records: []map[string]any{
		{"id": 1, "name": "Lead", "mystery_field": "??"},
	}}
	e := newTestEngine(t, src, emb, store, fetcher)

	res, err := e.SyncModelData(context.Background(), "crm.lead", 0, nil)
	if err != nil {
		t.Fatalf("SyncModelData: %v", err)
	}
	if res.Success {
		t.Error("unknown sample field must fail the run")
	}
	if len(res.MissingInSchema) != 1 || res.MissingInSchema[0] != "mystery_field" {
		t.Errorf("MissingInSchema = %v", res.MissingInSchema)
	}
	if emb.calls != 0 || len(store.upserted) != 0 {
		t.Error("failed validation must not embed or upsert anything")
	}
}

func TestSyncModelDataRestrictedFieldGetsSentinel(t *testing.T) {
	emb := &fakeEmbedder{}
	store := &fakeStore{}
	src := &mutableSource{fields: leadFields()}
	fetcher := &fakeFetcher{
		records: []map[string]any{{"id": 1, "name": "Lead", "expected_revenue": 5.0, "partner_id": false}},
		denied:  "expected_revenue",
	}
	e := newTestEngine(t, src, emb, store, fetcher)

	res, err := e.SyncModelData(context.Background(), "crm.lead", 0, nil)
	if err != nil {
		t.Fatalf("SyncModelData: %v", err)
	}
	if !res.Success {
		t.Fatalf("result = %+v, want success despite restriction", res)
	}
	if len(res.Restrictions) != 1 || res.Restrictions[0].FieldName != "expected_revenue" {
		t.Errorf("Restrictions = %+v", res.Restrictions)
	}
	if len(store.upserted) != 1 {
		t.Fatalf("upserted %d points", len(store.upserted))
	}
	encoded := store.upserted[0].Payload.Encoded
	if !strings.Contains(encoded, "344^6330*"+wire.RestrictedMarker) {
		t.Errorf("encoded %q must carry the restriction sentinel for expected_revenue", encoded)
	}
}

func TestSyncGuardRejectsConcurrentRun(t *testing.T) {
	var g runGuard
	if !g.tryLock("schema") {
		t.Fatal("first lock must succeed")
	}
	if g.tryLock("schema") {
		t.Error("second lock on the same key must fail")
	}
	if !g.tryLock("data:crm.lead") {
		t.Error("different key must lock independently")
	}
	g.unlock("schema")
	if !g.tryLock("schema") {
		t.Error("unlocked key must lock again")
	}
}
