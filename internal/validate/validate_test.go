package validate

import (
	"errors"
	"testing"

	"fundtrace/internal/domain"
)

type sample struct {
	Name    string `json:"name" validate:"required"`
	Country string `json:"country" validate:"omitempty,iso3166_1_alpha2"`
	Count   int    `validate:"gte=1"`
}

func TestStructReportsEveryField(t *testing.T) {
	err := Struct(sample{Country: "XX"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *domain.ValidationError, got %T", err)
	}
	want := map[string]string{"name": "required", "country": "iso3166_1_alpha2", "Count": "gte=1"}
	if len(verr.Fields) != len(want) {
		t.Fatalf("fields = %+v", verr.Fields)
	}
	for _, f := range verr.Fields {
		if want[f.Field] != f.Rule {
			t.Fatalf("field %s rule %s, want %s", f.Field, f.Rule, want[f.Field])
		}
	}
}

func TestStructAcceptsValidInput(t *testing.T) {
	if err := Struct(sample{Name: "a", Country: "ID", Count: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
