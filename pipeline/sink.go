package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/PavelSimon/EDC-data/models"
)

// CSVHeader is the first line of every CSV output.
var CSVHeader = []string{"date", "time_period", "positive_flexibility", "negative_flexibility", "shared_electricity"}

type encoder interface {
	encode(rec models.Record) error
	flush() error
}

type csvEncoder struct{ w *csv.Writer }

func (e csvEncoder) encode(rec models.Record) error {
	return e.w.Write([]string{
		rec.Date.String(),
		rec.TimePeriod,
		strconv.FormatFloat(rec.PositiveFlexibility, 'f', -1, 64),
		strconv.FormatFloat(rec.NegativeFlexibility, 'f', -1, 64),
		strconv.FormatFloat(rec.SharedElectricity, 'f', -1, 64),
	})
}

func (e csvEncoder) flush() error {
	e.w.Flush()
	return e.w.Error()
}

type jsonEncoder struct{ e *json.Encoder }

func (e jsonEncoder) encode(rec models.Record) error { return e.e.Encode(rec) }
func (e jsonEncoder) flush() error                   { return nil }

// FileSink appends records to one file in a single encoding. Every Write
// reaches the file before it returns.
type FileSink struct {
	mu   sync.Mutex
	path string
	file *os.File
	buf  *bufio.Writer
	enc  encoder
	rows int
}

// NewCSVSink truncates path and writes CSVHeader to it.
func NewCSVSink(path string) (*FileSink, error) {
	return newFileSink(path, func(w io.Writer) (encoder, error) {
		enc := csvEncoder{w: csv.NewWriter(w)}
		if err := enc.w.Write(CSVHeader); err != nil {
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		return enc, enc.flush()
	})
}

// NewJSONSink truncates path and writes one JSON object per line to it.
func NewJSONSink(path string) (*FileSink, error) {
	return newFileSink(path, func(w io.Writer) (encoder, error) {
		return jsonEncoder{e: json.NewEncoder(w)}, nil
	})
}

func newFileSink(path string, open func(io.Writer) (encoder, error)) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	buf := bufio.NewWriter(f)
	enc, err := open(buf)
	if err == nil {
		err = buf.Flush()
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileSink{path: path, file: f, buf: buf, enc: enc}, nil
}

// Path returns the file the sink writes to.
func (s *FileSink) Path() string { return s.path }

func (s *FileSink) Write(records []models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("%s: %w", s.path, os.ErrClosed)
	}

	for _, rec := range records {
		if err := s.enc.encode(rec); err != nil {
			return fmt.Errorf("%s: encode %s %s: %w", s.path, rec.Date, rec.TimePeriod, err)
		}
	}
	if err := s.enc.flush(); err != nil {
		return fmt.Errorf("%s: %w", s.path, err)
	}
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("%s: %w", s.path, err)
	}
	s.rows += len(records)
	return nil
}

// Close flushes and closes the file. Closing twice is a no-op.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := errors.Join(s.enc.flush(), s.buf.Flush(), s.file.Close())
	s.file = nil
	return err
}

// Validate fails when no record has been written.
func (s *FileSink) Validate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows == 0 {
		return fmt.Errorf("%s: no records written", s.path)
	}
	return nil
}

// MultiSink writes every batch to each of its sinks, in order.
type MultiSink struct {
	mu    sync.Mutex
	sinks []Sink
}

// NewMultiSink combines sinks. A failing Write stops the batch at that sink.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// NewDualSink writes CSV to csvPath and JSON lines to jsonPath.
func NewDualSink(csvPath, jsonPath string) (*MultiSink, error) {
	csvSink, err := NewCSVSink(csvPath)
	if err != nil {
		return nil, err
	}
	jsonSink, err := NewJSONSink(jsonPath)
	if err != nil {
		csvSink.Close()
		return nil, err
	}
	return NewMultiSink(csvSink, jsonSink), nil
}

func (m *MultiSink) Write(records []models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sinks {
		if err := s.Write(records); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}

func (m *MultiSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	errs := make([]error, 0, len(m.sinks))
	for _, s := range m.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

func (m *MultiSink) Validate() error {
	errs := make([]error, 0, len(m.sinks))
	for _, s := range m.sinks {
		errs = append(errs, s.Validate())
	}
	return errors.Join(errs...)
}
