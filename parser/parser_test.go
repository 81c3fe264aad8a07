package parser

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/PavelSimon/EDC-data/models"
)

var testDay = models.NewDate(2024, time.March, 5)

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		{name: "decimal comma", input: "12,34", want: 12.34},
		{name: "decimal point", input: "12.34", want: 12.34},
		{name: "surrounding whitespace", input: "  1,5\n", want: 1.5},
		{name: "non-breaking space", input: "\u00a02,3\u00a0", want: 2.3},
		{name: "negative", input: "-0,25", want: -0.25},
		{name: "integer", input: "7", want: 7},
		{name: "empty", input: "", want: 0},
		{name: "blank", input: "   ", want: 0},
		{name: "text", input: "abc", wantErr: true},
		{name: "two separators", input: "1.234,5", wantErr: true},
		{name: "nan", input: "NaN", wantErr: true},
		{name: "inf", input: "Inf", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecimal(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDecimal(%q) error=%v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("ParseDecimal(%q)=%v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseRow(t *testing.T) {
	rec, err := ParseRow(testDay, []string{" 00:00–00:15 ", "1,5", "0,0", "2,3"})
	if err != nil {
		t.Fatalf("parse row: %v", err)
	}
	want := models.Record{
		Date:                testDay,
		TimePeriod:          "00:00–00:15",
		PositiveFlexibility: 1.5,
		NegativeFlexibility: 0,
		SharedElectricity:   2.3,
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRowEmptyCellIsZero(t *testing.T) {
	rec, err := ParseRow(testDay, []string{"00:00–00:15", "1,5", "", "2,3"})
	if err != nil {
		t.Fatalf("parse row: %v", err)
	}
	if rec.NegativeFlexibility != 0 {
		t.Fatalf("negative=%v, want 0", rec.NegativeFlexibility)
	}
	if rec.SharedElectricity != 2.3 {
		t.Fatalf("shared=%v, want 2.3", rec.SharedElectricity)
	}
}

func TestParseRowErrors(t *testing.T) {
	if _, err := ParseRow(testDay, []string{"1", "2", "3"}); !errors.Is(err, ErrShortRow) {
		t.Fatalf("expected ErrShortRow, got %v", err)
	}

	_, err := ParseRow(testDay, []string{"00:00–00:15", "1,5", "abc", "2,3"})
	var cellErr *CellError
	if !errors.As(err, &cellErr) {
		t.Fatalf("expected CellError, got %v", err)
	}
	if cellErr.Column != "negative_flexibility" || cellErr.Text != "abc" {
		t.Fatalf("cell error=%+v", cellErr)
	}
}

func TestParseTable(t *testing.T) {
	rows := [][]string{
		{},
		{"1", "1,0", "2,0", "3,0"},
		{"2", "1,5", "abc", "2,3"},
		{"note"},
		{"3", "0,5", "", "0,1", "extra"},
	}

	records, errs := ParseTable(testDay, rows)
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	if records[0].TimePeriod != "1" || records[1].TimePeriod != "3" {
		t.Fatalf("unexpected order: %v", records)
	}
	if len(errs) != 1 {
		t.Fatalf("errors=%v, want 1", errs)
	}
	var rowErr *RowError
	if !errors.As(errs[0], &rowErr) || rowErr.Row != 2 {
		t.Fatalf("row error=%v", errs[0])
	}
}

func TestParseTableHeaderOnly(t *testing.T) {
	records, errs := ParseTable(testDay, [][]string{{"Perióda", "Kladná", "Záporná", "Zdieľanie"}})
	if len(records) != 0 || len(errs) != 0 {
		t.Fatalf("records=%v errs=%v", records, errs)
	}
}

func TestFirstTable(t *testing.T) {
	html := `<html><body>
<p>Dátum 01.01.1999</p>
<table id="data">
  <tr><th>Perióda</th><th>Kladná</th><th>Záporná</th><th>Zdieľanie</th></tr>
  <tr><td> 1 </td><td>1,5</td><td>0,0</td><td>2,3</td></tr>
  <tr><td>2</td><td>&nbsp;</td><td>4,25</td><td>0</td></tr>
</table>
<table id="other"><tr><td>x</td><td>9</td><td>9</td><td>9</td></tr></table>
</body></html>`

	rows, ok, err := FirstTable(strings.NewReader(html))
	if err != nil {
		t.Fatalf("first table: %v", err)
	}
	if !ok {
		t.Fatalf("expected a table")
	}
	want := [][]string{
		{},
		{"1", "1,5", "0,0", "2,3"},
		{"2", "", "4,25", "0"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestFirstTableMissing(t *testing.T) {
	_, ok, err := FirstTable(strings.NewReader("<html><body><p>Žiadne údaje</p></body></html>"))
	if err != nil {
		t.Fatalf("first table: %v", err)
	}
	if ok {
		t.Fatalf("expected no table")
	}
}

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name    string
		record  *models.Record
		wantErr bool
	}{
		{
			name:   "valid record",
			record: &models.Record{Date: testDay, TimePeriod: "00:00–00:15", PositiveFlexibility: 1.5},
		},
		{name: "nil record", record: nil, wantErr: true},
		{name: "missing date", record: &models.Record{TimePeriod: "1"}, wantErr: true},
		{name: "missing period", record: &models.Record{Date: testDay, TimePeriod: "  "}, wantErr: true},
		{name: "period too long", record: &models.Record{Date: testDay, TimePeriod: strings.Repeat("x", 21)}, wantErr: true},
		{name: "nan value", record: &models.Record{Date: testDay, TimePeriod: "1", SharedElectricity: math.NaN()}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRecord(tt.record)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateRecord() error=%v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
