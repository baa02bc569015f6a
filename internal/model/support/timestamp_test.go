package support

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestTimestampUnmarshalLayouts(t *testing.T) {
	cases := map[string]time.Time{
		`"2024-05-01T10:00:00Z"`:             time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		`"2024-05-01T12:00:00+02:00"`:        time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		`"2024-05-01T10:00:00.123456"`:       time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC),
		`"2024-05-01T10:00:00"`:              time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		`"2024-05-01 10:00:00.5"`:            time.Date(2024, 5, 1, 10, 0, 0, 500000000, time.UTC),
		`"2024-05-01 10:00:00.000001+00:00"`: time.Date(2024, 5, 1, 10, 0, 0, 1000, time.UTC),
	}

	for raw, want := range cases {
		var ts Timestamp
		if err := json.Unmarshal([]byte(raw), &ts); err != nil {
			t.Fatalf("unmarshal %s err: %v", raw, err)
		}
		if !ts.Equal(want) {
			t.Fatalf("unmarshal %s: got %v want %v", raw, ts.Time, want)
		}
	}
}

func TestTimestampUnmarshalNullAndInvalid(t *testing.T) {
	var ts Timestamp
	if err := json.Unmarshal([]byte(`null`), &ts); err != nil {
		t.Fatalf("null err: %v", err)
	}
	if !ts.IsZero() {
		t.Fatalf("expected zero time for null")
	}

	if err := json.Unmarshal([]byte(`"yesterday"`), &ts); err == nil {
		t.Fatal("expected error for unparseable timestamp")
	}
	if err := json.Unmarshal([]byte(`12`), &ts); err == nil {
		t.Fatal("expected error for numeric timestamp")
	}
}

func TestSessionRecordSummaryClampsCount(t *testing.T) {
	record := SessionRecord{SessionID: "s1", MessageCount: -3}
	if got := record.Summary().MessageCount; got != 0 {
		t.Fatalf("expected clamped count 0, got %d", got)
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(fmt.Errorf("history: %w", ErrNotFound)) != KindNotFound {
		t.Fatal("expected not found kind")
	}
	if KindOf(fmt.Errorf("resolve: %w", ErrValidation)) != KindValidation {
		t.Fatal("expected validation kind")
	}
	if KindOf(errors.New("boom")) != KindNotReachable {
		t.Fatal("expected unknown errors to classify as not reachable")
	}
	if UserMessage(KindNotReachable) == "boom" {
		t.Fatal("user message must not echo raw error detail")
	}
}
