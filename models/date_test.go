package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDateFormDay(t *testing.T) {
	tests := []struct {
		date Date
		want string
	}{
		{NewDate(2024, time.March, 5), "05.03.2024"},
		{NewDate(2024, time.December, 31), "31.12.2024"},
		{NewDate(2023, time.February, 29), "01.03.2023"},
	}
	for _, tt := range tests {
		if got := tt.date.FormDay(); got != tt.want {
			t.Fatalf("FormDay(%v)=%q, want %q", tt.date, got, tt.want)
		}
	}
}

func TestDateOfDropsTimeOfDay(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	late := time.Date(2024, time.May, 1, 23, 45, 0, 0, loc)
	early := time.Date(2024, time.May, 1, 0, 1, 0, 0, loc)
	if DateOf(late) != DateOf(early) {
		t.Fatalf("dates differ: %v vs %v", DateOf(late), DateOf(early))
	}
	if got := DateOf(late).String(); got != "2024-05-01" {
		t.Fatalf("date=%q, want 2024-05-01", got)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d != NewDate(2024, time.February, 29) {
		t.Fatalf("date=%v", d)
	}
	if _, err := ParseDate("29.02.2024"); err == nil {
		t.Fatalf("expected error for non-ISO input")
	}
}

func TestDateJSON(t *testing.T) {
	rec := Record{Date: NewDate(2024, time.January, 2), TimePeriod: "1"}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Record
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Date != rec.Date {
		t.Fatalf("date=%v, want %v", back.Date, rec.Date)
	}
}

func TestDateRangeDays(t *testing.T) {
	r := DateRange{Start: NewDate(2024, time.February, 27), End: NewDate(2024, time.March, 2)}
	var got []string
	for d := range r.Days() {
		got = append(got, d.String())
	}
	want := []string{"2024-02-27", "2024-02-28", "2024-02-29", "2024-03-01", "2024-03-02"}
	if len(got) != len(want) {
		t.Fatalf("days=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("day[%d]=%s, want %s", i, got[i], want[i])
		}
	}
	if r.Len() != 5 {
		t.Fatalf("len=%d, want 5", r.Len())
	}
}

func TestDateRangeInverted(t *testing.T) {
	r := DateRange{Start: NewDate(2024, time.March, 2), End: NewDate(2024, time.March, 1)}
	for d := range r.Days() {
		t.Fatalf("unexpected day %v", d)
	}
	if r.Len() != 0 {
		t.Fatalf("len=%d, want 0", r.Len())
	}
}

func TestScrapeResultFold(t *testing.T) {
	d1 := NewDate(2024, time.March, 1)
	d2 := d1.AddDays(1)
	res := NewScrapeResult(DateRange{Start: d1, End: d2})

	res.Fold(DayOutcome{Date: d1, Status: DayRecords, Records: []Record{{Date: d1, TimePeriod: "1"}, {Date: d1, TimePeriod: "2"}}, Requests: 2, RowErrors: 1})
	res.Fold(DayOutcome{Date: d2, Status: DayFailed, Err: errors.New("boom"), ErrorType: "connection", Requests: 1})

	if len(res.Records) != 2 || res.Records[1].TimePeriod != "2" {
		t.Fatalf("records=%v", res.Records)
	}
	if res.RequestCount != 3 || res.ErrorCount != 1 || res.RowErrors != 1 {
		t.Fatalf("requests=%d errors=%d rowErrors=%d", res.RequestCount, res.ErrorCount, res.RowErrors)
	}
	if res.ErrorsByType["connection"] != 1 {
		t.Fatalf("errorsByType=%v", res.ErrorsByType)
	}
	if res.DaysWithStatus(DayFailed) != 1 || res.Days[1].Error != "boom" {
		t.Fatalf("days=%v", res.Days)
	}
}
