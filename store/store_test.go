package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/PavelSimon/EDC-data/models"
	"github.com/PavelSimon/EDC-data/pipeline"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func rec(day int, period string, pos float64) models.Record {
	return models.Record{
		Date:                models.NewDate(2024, time.March, day),
		TimePeriod:          period,
		PositiveFlexibility: pos,
		NegativeFlexibility: 0,
		SharedElectricity:   2.3,
	}
}

func TestInsertAndQueryRecords(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	records := []models.Record{rec(1, "2", 1), rec(1, "1", 2), rec(2, "1", 3), rec(4, "1", 4)}
	n, err := s.InsertRecords(ctx, records)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if n != 4 {
		t.Fatalf("inserted=%d, want 4", n)
	}

	got, err := s.Records(ctx, models.DateRange{Start: models.NewDate(2024, time.March, 1), End: models.NewDate(2024, time.March, 2)})
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if diff := cmp.Diff(records[:3], got); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}

	all, err := s.AllRecords(ctx)
	if err != nil {
		t.Fatalf("all records: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("all=%d, want 4", len(all))
	}
}

func TestHasRange(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, err := s.InsertRecords(ctx, []models.Record{rec(10, "1", 1)}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	tests := []struct {
		name       string
		start, end int
		want       bool
	}{
		{name: "covers stored day", start: 9, end: 11, want: true},
		{name: "exact day", start: 10, end: 10, want: true},
		{name: "before", start: 1, end: 9, want: false},
		{name: "after", start: 11, end: 20, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := models.DateRange{Start: models.NewDate(2024, time.March, tt.start), End: models.NewDate(2024, time.March, tt.end)}
			got, err := s.HasRange(ctx, r)
			if err != nil {
				t.Fatalf("has range: %v", err)
			}
			if got != tt.want {
				t.Fatalf("HasRange(%s)=%v, want %v", r, got, tt.want)
			}
		})
	}
}

func TestInsertRollsBackOnDuplicateSlot(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, err := s.InsertRecords(ctx, []models.Record{rec(1, "1", 1)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.InsertRecords(ctx, []models.Record{rec(2, "1", 1), rec(1, "1", 5)}); err == nil {
		t.Fatalf("expected unique constraint error")
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("count=%d, want 1 after rollback", n)
	}
}

func TestStoreAsSink(t *testing.T) {
	var s pipeline.Sink = openTestStore(t)

	if err := s.Validate(); err == nil {
		t.Fatalf("expected empty store to fail validation")
	}
	if err := s.Write([]models.Record{rec(1, "1", 1)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
