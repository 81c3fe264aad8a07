// Package parser turns the published HTML table into records.
package parser

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/PavelSimon/EDC-data/models"
)

// MinCells is the number of cells a data row needs: period plus three values.
const MinCells = 4

// MaxTimePeriodLen matches the width of the stored time_period column.
const MaxTimePeriodLen = 20

// ErrShortRow marks a row with fewer than MinCells cells.
var ErrShortRow = errors.New("parser: row has too few cells")

var columnNames = [MinCells]string{"time_period", "positive_flexibility", "negative_flexibility", "shared_electricity"}

// CellError reports a numeric cell that could not be parsed.
type CellError struct {
	Column string
	Text   string
	Err    error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("column %s: invalid number %q: %v", e.Column, e.Text, e.Err)
}

func (e *CellError) Unwrap() error {
	return e.Err
}

// CleanText trims whitespace, including non-breaking spaces.
func CleanText(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\u00a0", " "))
}

// ParseDecimal parses a number written with either a decimal comma or a
// decimal point. An empty cell is 0.
func ParseDecimal(text string) (float64, error) {
	text = CleanText(text)
	if text == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", "."), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", text)
	}
	return v, nil
}

// ParseRow builds the record of day from the cells of one table row.
func ParseRow(day models.Date, cells []string) (models.Record, error) {
	if len(cells) < MinCells {
		return models.Record{}, ErrShortRow
	}

	var values [MinCells - 1]float64
	for i := 1; i < MinCells; i++ {
		v, err := ParseDecimal(cells[i])
		if err != nil {
			return models.Record{}, &CellError{Column: columnNames[i], Text: CleanText(cells[i]), Err: err}
		}
		values[i-1] = v
	}

	return models.Record{
		Date:                day,
		TimePeriod:          CleanText(cells[0]),
		PositiveFlexibility: values[0],
		NegativeFlexibility: values[1],
		SharedElectricity:   values[2],
	}, nil
}

// RowError is a rejected row of a table.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// ParseTable skips the header row and parses every remaining row of day.
// Short rows are ignored without an error; rows with a bad numeric cell are
// reported and left out. Records keep row order.
func ParseTable(day models.Date, rows [][]string) ([]models.Record, []error) {
	if len(rows) <= 1 {
		return nil, nil
	}

	var (
		records []models.Record
		errs    []error
	)
	for i, cells := range rows[1:] {
		rec, err := ParseRow(day, cells)
		if errors.Is(err, ErrShortRow) {
			continue
		}
		if err != nil {
			errs = append(errs, &RowError{Row: i + 1, Err: err})
			continue
		}
		records = append(records, rec)
	}
	return records, errs
}

// TableRows returns the cleaned <td> texts of every <tr> in table, in
// document order. Header rows built from <th> cells come back empty.
func TableRows(table *goquery.Selection) [][]string {
	rows := make([][]string, 0, table.Find("tr").Length())
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := make([]string, 0, MinCells)
		tr.Find("td").Each(func(_ int, td *goquery.Selection) {
			cells = append(cells, CleanText(td.Text()))
		})
		rows = append(rows, cells)
	})
	return rows
}

// FirstTable parses an HTML document and returns the rows of its first
// <table>. ok is false when the document has no table.
func FirstTable(r io.Reader) (rows [][]string, ok bool, err error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, false, fmt.Errorf("parse html: %w", err)
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, false, nil
	}
	return TableRows(table), true, nil
}

// ValidateRecord ensures a record is fit for storage.
func ValidateRecord(r *models.Record) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if r.Date.IsZero() {
		return fmt.Errorf("record missing date")
	}
	if strings.TrimSpace(r.TimePeriod) == "" {
		return fmt.Errorf("record missing time period for %s", r.Date)
	}
	if utf8.RuneCountInString(r.TimePeriod) > MaxTimePeriodLen {
		return fmt.Errorf("time period %q longer than %d characters", r.TimePeriod, MaxTimePeriodLen)
	}
	for _, v := range []float64{r.PositiveFlexibility, r.NegativeFlexibility, r.SharedElectricity} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("record %s %s has non-finite value", r.Date, r.TimePeriod)
		}
	}
	return nil
}
