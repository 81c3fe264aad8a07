// Package models defines the records produced by the range scraper.
package models

import "time"

// Record is one published row for a single day and time period. Values are
// in MWh.
type Record struct {
	Date                Date    `csv:"date" json:"date"`
	TimePeriod          string  `csv:"time_period" json:"time_period"`
	PositiveFlexibility float64 `csv:"positive_flexibility" json:"positive_flexibility"`
	NegativeFlexibility float64 `csv:"negative_flexibility" json:"negative_flexibility"`
	SharedElectricity   float64 `csv:"shared_electricity" json:"shared_electricity"`
}

// Key identifies the (date, time period) slot of a record.
func (r Record) Key() string {
	return r.Date.String() + "|" + r.TimePeriod
}

// DayStatus is the outcome class of one scraped day.
type DayStatus string

const (
	DayRecords DayStatus = "records"
	DayEmpty   DayStatus = "empty"
	DayFailed  DayStatus = "failed"
)

// DayOutcome is what a single day contributed to a range scrape.
type DayOutcome struct {
	Date      Date
	Status    DayStatus
	Records   []Record
	Err       error
	ErrorType string
	Requests  int
	RowErrors int
}

// DaySummary is the bookkeeping kept for each attempted day.
type DaySummary struct {
	Date      Date      `json:"date"`
	Status    DayStatus `json:"status"`
	Records   int       `json:"records"`
	RowErrors int       `json:"row_errors,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// ScrapeResult holds the records of a range scrape in day order, then source
// row order, along with per-day bookkeeping.
type ScrapeResult struct {
	Range        DateRange
	Records      []Record
	Days         []DaySummary
	StartTime    time.Time
	EndTime      time.Time
	RequestCount int
	ErrorCount   int
	RowErrors    int
	ErrorsByType map[string]int
}

// NewScrapeResult returns an empty result for r.
func NewScrapeResult(r DateRange) *ScrapeResult {
	return &ScrapeResult{
		Range:        r,
		Records:      []Record{},
		ErrorsByType: make(map[string]int),
	}
}

// Fold appends the outcome of the next day.
func (sr *ScrapeResult) Fold(o DayOutcome) {
	summary := DaySummary{
		Date:      o.Date,
		Status:    o.Status,
		Records:   len(o.Records),
		RowErrors: o.RowErrors,
	}
	if o.Err != nil {
		summary.Error = o.Err.Error()
		sr.ErrorCount++
		if sr.ErrorsByType == nil {
			sr.ErrorsByType = make(map[string]int)
		}
		label := o.ErrorType
		if label == "" {
			label = "other"
		}
		sr.ErrorsByType[label]++
	}
	sr.Days = append(sr.Days, summary)
	sr.Records = append(sr.Records, o.Records...)
	sr.RequestCount += o.Requests
	sr.RowErrors += o.RowErrors
}

// Empty reports whether no records were collected.
func (sr *ScrapeResult) Empty() bool {
	return len(sr.Records) == 0
}

// DaysWithStatus counts the attempted days with status s.
func (sr *ScrapeResult) DaysWithStatus(s DayStatus) int {
	n := 0
	for _, d := range sr.Days {
		if d.Status == s {
			n++
		}
	}
	return n
}
