package odoo

import (
	"errors"
	"reflect"
	"testing"
)

func TestClassifySecurityErrors(t *testing.T) {
	c := Classifier{}

	tests := []struct {
		name string
		msg  string
		want []string
	}{
		{
			"quoted fields",
			`You do not have access to the fields "phone_sanitized", "email_normalized" on crm.lead`,
			[]string{"phone_sanitized", "email_normalized"},
		},
		{
			"paren list",
			"The requested operation can not be completed due to security restrictions. (fields: probability, color)",
			[]string{"probability", "color"},
		},
		{
			"single quoted",
			`Access to the field 'expected_revenue' denied`,
			[]string{"expected_revenue"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(errors.New(tt.msg))
			if got.Kind != KindSecurity {
				t.Fatalf("Kind = %s, want security", got.Kind)
			}
			if !reflect.DeepEqual(got.Fields, tt.want) {
				t.Errorf("Fields = %v, want %v", got.Fields, tt.want)
			}
		})
	}
}

func TestClassifyComputeError(t *testing.T) {
	c := Classifier{}

	got := c.Classify(errors.New("Error while computing field crm.lead.recurring_revenue_monthly"))
	if got.Kind != KindCompute {
		t.Fatalf("Kind = %s, want compute", got.Kind)
	}
	if len(got.Fields) != 1 || got.Fields[0] != "recurring_revenue_monthly" {
		t.Errorf("Fields = %v", got.Fields)
	}
}

func TestClassifySingletonNamesNoField(t *testing.T) {
	c := Classifier{}

	got := c.Classify(errors.New("ValueError: Expected singleton: crm.lead(3, 7)"))
	if got.Kind != KindSingleton {
		t.Fatalf("Kind = %s, want singleton", got.Kind)
	}
	if len(got.Fields) != 0 {
		t.Errorf("singleton classification must not name fields, got %v", got.Fields)
	}
}

func TestClassifyOther(t *testing.T) {
	c := Classifier{}

	for _, msg := range []string{
		"connection refused",
		"Invalid database name",
		"Session expired",
	} {
		if got := c.Classify(errors.New(msg)); got.Kind != KindOther {
			t.Errorf("Classify(%q).Kind = %s, want other", msg, got.Kind)
		}
	}
	if got := c.Classify(nil); got.Kind != KindOther {
		t.Errorf("Classify(nil).Kind = %s", got.Kind)
	}
}

func TestClassifyAccessWithoutFieldNamesIsFatal(t *testing.T) {
	c := Classifier{}

	// A blanket access error naming nothing cannot be recovered by
	// removing fields, so it must not classify as a restriction.
	got := c.Classify(errors.New("Access Denied due to security restrictions"))
	if got.Kind != KindOther {
		t.Errorf("Kind = %s, want other for an access error naming no field", got.Kind)
	}
}
