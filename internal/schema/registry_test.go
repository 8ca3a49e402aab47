package schema

import (
	"context"
	"testing"

	"github.com/mbartocci/odoovec/internal/wire"
)

func dynProto(t *testing.T) *wire.Protocol {
	t.Helper()
	p, ok := wire.ProtocolFor(wire.VersionDynamic)
	if !ok {
		t.Fatal("dynamic protocol not registered")
	}
	return p
}

// crmFixture is a small registry shaped like a real CRM install:
// res.partner (78), crm.lead (344), crm.tag (101) and sale.order (205),
// with two different models both holding a many2one to res.partner.
func crmFixture(t *testing.T) []FieldDescriptor {
	t.Helper()
	p := dynProto(t)
	mk := func(modelID, fieldID int64, model, name, label string, ft wire.FieldType, storage string) FieldDescriptor {
		d := FieldDescriptor{
			Coordinate:      p.FormatCoordinate(modelID, fieldID),
			ModelID:         modelID,
			FieldID:         fieldID,
			OwnerModel:      model,
			FieldName:       name,
			FieldLabel:      label,
			FieldType:       ft,
			StorageLocation: storage,
			IsStored:        storage != StorageComputed,
		}
		if d.IsForeignKey() {
			d.ForeignKeyTarget = targetFromStorage(storage)
		}
		return d
	}
	return []FieldDescriptor{
		mk(78, 956, "res.partner", "id", "ID", wire.FieldInteger, "res.partner.id"),
		mk(78, 957, "res.partner", "name", "Name", wire.FieldChar, "res.partner.name"),
		mk(344, 6320, "crm.lead", "id", "ID", wire.FieldInteger, "crm.lead.id"),
		mk(344, 6327, "crm.lead", "name", "Opportunity", wire.FieldChar, "crm.lead.name"),
		mk(344, 6330, "crm.lead", "expected_revenue", "Expected Revenue", wire.FieldFloat, "crm.lead.expected_revenue"),
		mk(344, 6335, "crm.lead", "partner_id", "Customer", wire.FieldMany2one, "res.partner.id"),
		mk(344, 6340, "crm.lead", "tag_ids", "Tags", wire.FieldMany2many, "crm.tag.id"),
		mk(344, 6345, "crm.lead", "active", "Active", wire.FieldBoolean, "crm.lead.active"),
		mk(344, 6350, "crm.lead", "description", "Notes", wire.FieldText, StorageComputed),
		mk(101, 1010, "crm.tag", "id", "ID", wire.FieldInteger, "crm.tag.id"),
		mk(101, 1011, "crm.tag", "name", "Tag Name", wire.FieldChar, "crm.tag.name"),
		mk(205, 2050, "sale.order", "id", "ID", wire.FieldInteger, "sale.order.id"),
		mk(205, 2055, "sale.order", "partner_id", "Customer", wire.FieldMany2one, "res.partner.id"),
	}
}

func crmRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(dynProto(t), crmFixture(t))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

// --- Lookups ---

func TestLookupByCoordinate(t *testing.T) {
	reg := crmRegistry(t)

	d, ok := reg.Lookup("344^6330")
	if !ok {
		t.Fatal("Lookup(344^6330) not found")
	}
	if d.FieldName != "expected_revenue" || d.OwnerModel != "crm.lead" {
		t.Errorf("Lookup = %s.%s, want crm.lead.expected_revenue", d.OwnerModel, d.FieldName)
	}

	if _, ok := reg.Lookup("999^999"); ok {
		t.Error("unknown coordinate should be not-found, not an error")
	}
}

func TestFieldsOfStableOrder(t *testing.T) {
	reg := crmRegistry(t)

	fields := reg.FieldsOf("crm.lead")
	if len(fields) != 7 {
		t.Fatalf("FieldsOf(crm.lead) = %d fields, want 7", len(fields))
	}
	for i := 1; i < len(fields); i++ {
		if fields[i-1].FieldID > fields[i].FieldID {
			t.Errorf("fields out of order: %d before %d", fields[i-1].FieldID, fields[i].FieldID)
		}
	}
	if reg.FieldsOf("no.such.model") != nil {
		t.Error("unknown model should return nil")
	}
}

func TestReferencesTo(t *testing.T) {
	reg := crmRegistry(t)

	refs := reg.ReferencesTo("res.partner")
	if len(refs) != 2 {
		t.Fatalf("ReferencesTo(res.partner) = %d refs, want 2", len(refs))
	}
	owners := map[string]bool{}
	for _, d := range refs {
		owners[d.OwnerModel] = true
		if d.FieldType != wire.FieldMany2one {
			t.Errorf("reverse reference %s.%s is %s, want many2one", d.OwnerModel, d.FieldName, d.FieldType)
		}
	}
	if !owners["crm.lead"] || !owners["sale.order"] {
		t.Errorf("reverse references owners = %v, want crm.lead and sale.order", owners)
	}
}

func TestIdentityCoordinate(t *testing.T) {
	reg := crmRegistry(t)

	coord, ok := reg.IdentityCoordinate("res.partner")
	if !ok || coord != "78^956" {
		t.Errorf("IdentityCoordinate(res.partner) = (%q, %v), want 78^956", coord, ok)
	}
	if _, ok := reg.IdentityCoordinate("no.such.model"); ok {
		t.Error("identity coordinate of unknown model should be not-found")
	}
}

func TestModelID(t *testing.T) {
	reg := crmRegistry(t)

	id, ok := reg.ModelID("crm.lead")
	if !ok || id != 344 {
		t.Errorf("ModelID(crm.lead) = (%d, %v), want 344", id, ok)
	}
}

func TestDuplicateCoordinateRejected(t *testing.T) {
	fields := crmFixture(t)
	fields = append(fields, fields[0])

	if _, err := NewRegistry(dynProto(t), fields); err == nil {
		t.Error("duplicate coordinate should be rejected")
	}
}

// --- Loader cache ---

type countingSource struct {
	fields []FieldDescriptor
	loads  int
}

func (s *countingSource) Load(ctx context.Context) ([]FieldDescriptor, error) {
	s.loads++
	return s.fields, nil
}

func TestLoaderBuildsOnceAndInvalidates(t *testing.T) {
	src := &countingSource{fields: crmFixture(t)}
	loader := NewLoader(dynProto(t), src)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := loader.Registry(ctx); err != nil {
			t.Fatalf("Registry: %v", err)
		}
	}
	if src.loads != 1 {
		t.Errorf("source loaded %d times, want 1 (cached)", src.loads)
	}

	loader.Invalidate()
	if _, err := loader.Registry(ctx); err != nil {
		t.Fatalf("Registry after Invalidate: %v", err)
	}
	if src.loads != 2 {
		t.Errorf("source loaded %d times after invalidation, want 2", src.loads)
	}
}
