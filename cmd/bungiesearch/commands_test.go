package main

import (
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	ts, err := parseTime("2024-05-01T10:30:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("parsed = %v, want %v", ts, want)
	}

	ts, err = parseTime("2024-05-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("parsed = %v, want %v", ts, want)
	}

	if _, err := parseTime("yesterday"); err == nil {
		t.Fatal("expected error for unparseable time")
	}
}
