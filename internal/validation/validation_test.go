package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidators(t *testing.T) {
	tests := []struct {
		name    string
		err     *ValidationError
		wantErr bool
	}{
		{"utf8 ok", ValidateUTF8("f", "Hello, 世界"), false},
		{"utf8 bad", ValidateUTF8("f", string([]byte{0xff, 0xfe})), true},
		{"null clean", ValidateNoNullBytes("f", "clean"), false},
		{"null present", ValidateNoNullBytes("f", "a\x00b"), true},
		{"max within", ValidateMaxLength("f", "sim", 3), false},
		{"max multibyte", ValidateMaxLength("f", "日本語", 3), false},
		{"max exceeds", ValidateMaxLength("f", "tracker", 3), true},
		{"noneof clean", ValidateNoneOf("f", "sim", " `"), false},
		{"noneof backtick", ValidateNoneOf("f", "si`m", " `"), true},
		{"ulid ok", ValidateULID("f", "01ARZ3NDEKTSV4RRFFQ69G5FAV"), false},
		{"ulid lowercase", ValidateULID("f", "01arz3ndektsv4rrffq69g5fav"), false},
		{"ulid short", ValidateULID("f", "01ARZ3"), true},
		{"ulid bad char", ValidateULID("f", "01ARZ3NDEKTSV4RRFFQ69G5FAU"), true},
		{"required ok", ValidateRequired("f", "x"), false},
		{"required blank", ValidateRequired("f", "  \t"), true},
		{"enum ok", ValidateEnum("f", "TOP", []string{"TOP", "BOTTOM"}), false},
		{"enum case", ValidateEnum("f", "top", []string{"TOP", "BOTTOM"}), true},
		{"range ok", ValidateRange("f", 0.7, 0, 2), false},
		{"range edge", ValidateRange("f", 2, 0, 2), false},
		{"range above", ValidateRange("f", 2.5, 0, 2), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if (tt.err != nil) != tt.wantErr {
				t.Errorf("got %v, wantErr %v", tt.err, tt.wantErr)
			}
			if tt.err != nil && tt.err.Field != "f" {
				t.Errorf("Field = %q, want f", tt.err.Field)
			}
		})
	}
}

func TestValidateEnum_ListsAllowed(t *testing.T) {
	err := ValidateEnum("position", "UP", []string{"TOP", "BOTTOM"})
	if err == nil || !strings.Contains(err.Message, "TOP, BOTTOM") {
		t.Errorf("ValidateEnum() = %v", err)
	}
}

func TestCollector(t *testing.T) {
	var c Collector

	// Given: an empty collector
	if c.HasErrors() || c.Err() != nil {
		t.Fatal("empty collector reports errors")
	}

	// When: adding a mix of nil and real failures
	c.Add(nil)
	c.Add(ValidateRequired("identifier", ""))
	c.Add(ValidateEnum("position", "UP", []string{"TOP"}))

	// Then: only the failures are kept, in order
	if got := len(c.Errors()); got != 2 {
		t.Fatalf("len(Errors()) = %d, want 2", got)
	}

	err := c.Err()
	var list Errors
	if !errors.As(err, &list) || len(list) != 2 {
		t.Fatalf("Err() = %#v, want Errors of 2", err)
	}
	if list[0].Field != "identifier" || list[1].Field != "position" {
		t.Errorf("fields = %q, %q", list[0].Field, list[1].Field)
	}
	if want := "identifier is required; position must be one of: TOP"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
