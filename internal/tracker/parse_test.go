package tracker

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	t.Run("json legacy", func(t *testing.T) {
		src, err := Parse(`{"current_date":"2025-08-10","Alice":{"ap":75}}`)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		legacy, ok := src.(LegacySource)
		if !ok {
			t.Fatalf("expected LegacySource, got %T", src)
		}
		if !reflect.DeepEqual(legacy.Order, []string{"current_date", "Alice"}) {
			t.Fatalf("unexpected key order %v", legacy.Order)
		}
	})

	t.Run("json modern", func(t *testing.T) {
		src, err := Parse(`{"worldData":{"current_time":"10:00"},"characters":[{"name":"Bob"}]}`)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, ok := src.(ModernSource); !ok {
			t.Fatalf("expected ModernSource, got %T", src)
		}
	})

	t.Run("yaml fallback", func(t *testing.T) {
		payload := "worldData:\n  current_date: \"2025-08-10\"\ncharacters:\n  - name: Alice\n    ap: 75\n"
		rec, err := ParseRecord(payload)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(rec.Characters) != 1 || rec.Characters[0].Name != "Alice" {
			t.Fatalf("unexpected characters %#v", rec.Characters)
		}
		if rec.Characters[0].Stats["ap"] != float64(75) {
			t.Fatalf("expected ap canonicalized to float64, got %#v", rec.Characters[0].Stats["ap"])
		}
	})

	t.Run("yaml legacy keeps authored order", func(t *testing.T) {
		payload := "Zed:\n  ap: 1\ncurrent_time: \"09:00\"\nAmy:\n  ap: 2\n"
		rec, err := ParseRecord(payload)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(rec.Characters) != 2 || rec.Characters[0].Name != "Zed" || rec.Characters[1].Name != "Amy" {
			t.Fatalf("unexpected order %#v", rec.Characters)
		}
		if rec.WorldData["current_time"] != "09:00" {
			t.Fatalf("unexpected world data %#v", rec.WorldData)
		}
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, err := Parse("{not: [valid")
		if !errors.Is(err, ErrParse) {
			t.Fatalf("expected ErrParse, got %v", err)
		}
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("expected *ParseError, got %T", err)
		}
		if pe.Payload != "{not: [valid" {
			t.Fatalf("expected payload carried, got %q", pe.Payload)
		}
		if pe.JSONErr == nil || pe.YAMLErr == nil {
			t.Fatalf("expected both decoder errors recorded")
		}
	})

	t.Run("scalar payload", func(t *testing.T) {
		if _, err := Parse("just some prose"); !errors.Is(err, ErrParse) {
			t.Fatalf("expected ErrParse, got %v", err)
		}
	})

	t.Run("json array payload", func(t *testing.T) {
		if _, err := Parse("[1, 2]"); !errors.Is(err, ErrParse) {
			t.Fatalf("expected ErrParse, got %v", err)
		}
	})

	t.Run("empty payload", func(t *testing.T) {
		if _, err := Parse(""); !errors.Is(err, ErrParse) {
			t.Fatalf("expected ErrParse, got %v", err)
		}
	})
}

func TestParseRecord_YAMLBareDates(t *testing.T) {
	rec, err := ParseRecord("current_date: 2025-08-10\ncurrent_time: 14:30\nAlice:\n  ap: 75\n  since: 2024-01-02\n")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got := rec.WorldData["current_date"]; got != "2025-08-10" {
		t.Fatalf("expected current_date kept as written, got %#v", got)
	}
	if got := rec.WorldData["current_time"]; got != "14:30" {
		t.Fatalf("expected current_time kept as written, got %#v", got)
	}
	if len(rec.Characters) != 1 || rec.Characters[0].Stats["since"] != "2024-01-02" {
		t.Fatalf("expected nested date kept as written, got %#v", rec.Characters)
	}

	out, err := Serialize(rec, FormatYAML)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if strings.Contains(out, "T00:00:00Z") || !strings.Contains(out, "2025-08-10") {
		t.Fatalf("expected the date unchanged in yaml output:\n%s", out)
	}
}
