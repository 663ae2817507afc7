package validation

import (
	"strings"
	"testing"
)

func TestValidateRequired(t *testing.T) {
	if err := ValidateRequired("name", "value"); err != nil {
		t.Errorf("expected nil for non-empty value, got %+v", err)
	}
	if err := ValidateRequired("name", ""); err == nil {
		t.Error("expected error for empty value")
	}
	if err := ValidateRequired("name", "   "); err == nil {
		t.Error("expected error for whitespace-only value")
	}
}

func TestValidateMaxLength(t *testing.T) {
	if err := ValidateMaxLength("name", "short", 10); err != nil {
		t.Errorf("expected nil for short value, got %+v", err)
	}
	if err := ValidateMaxLength("name", strings.Repeat("x", 11), 10); err == nil {
		t.Error("expected error for long value")
	}
	// Rune count, not byte count.
	if err := ValidateMaxLength("name", strings.Repeat("é", 10), 10); err != nil {
		t.Errorf("expected nil for 10 multibyte runes, got %+v", err)
	}
}

func TestValidateUTF8(t *testing.T) {
	if err := ValidateUTF8("name", "héllo"); err != nil {
		t.Errorf("expected nil for valid UTF-8, got %+v", err)
	}
	if err := ValidateUTF8("name", string([]byte{0xff, 0xfe})); err == nil {
		t.Error("expected error for invalid UTF-8")
	}
}

func TestValidateProgress(t *testing.T) {
	for _, v := range []float64{0, 0.5, 1} {
		if err := ValidateProgress("progress", v); err != nil {
			t.Errorf("expected nil for %v, got %+v", v, err)
		}
	}
	for _, v := range []float64{-0.1, 1.1} {
		if err := ValidateProgress("progress", v); err == nil {
			t.Errorf("expected error for %v", v)
		}
	}
}

func TestCollector(t *testing.T) {
	var c Collector
	if c.HasErrors() {
		t.Error("empty collector should have no errors")
	}

	c.Add(nil)
	c.Add(ValidateRequired("name", ""))
	c.Add(ValidateProgress("progress", 2))

	if !c.HasErrors() {
		t.Error("expected errors")
	}
	errs := c.Errors()
	if len(errs) != 2 {
		t.Fatalf("len = %d, want 2 (nil must be skipped)", len(errs))
	}
	if errs[0].Field != "name" || errs[1].Field != "progress" {
		t.Errorf("fields = %q, %q", errs[0].Field, errs[1].Field)
	}
}
