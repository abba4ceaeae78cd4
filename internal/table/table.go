// Package table is a small in-memory model of a delimited text table: an
// ordered header and rows of cells that are either text or missing.
package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// ErrMalformed marks input that cannot be read as a table.
var ErrMalformed = errors.New("malformed table")

// ErrMissingColumn is returned by RequireColumns.
var ErrMissingColumn = errors.New("missing column")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// nullTokens are the cell spellings read as missing values.
var nullTokens = map[string]struct{}{
	"":         {},
	"#N/A":     {},
	"#N/A N/A": {},
	"#NA":      {},
	"-1.#IND":  {},
	"-1.#QNAN": {},
	"-NaN":     {},
	"-nan":     {},
	"1.#IND":   {},
	"1.#QNAN":  {},
	"<NA>":     {},
	"N/A":      {},
	"NA":       {},
	"NULL":     {},
	"NaN":      {},
	"None":     {},
	"n/a":      {},
	"nan":      {},
	"null":     {},
}

func IsNull(text string) bool {
	_, ok := nullTokens[text]
	return ok
}

type Cell struct {
	Text string
	Null bool
}

func Value(text string) Cell {
	return Cell{Text: text}
}

func Missing() Cell {
	return Cell{Null: true}
}

type Row []Cell

type Table struct {
	columns []string
	index   map[string]int
	rows    []Row
}

// New builds a table from a header and rows. Every row must match the
// header width.
func New(columns []string, rows []Row) (*Table, error) {
	index, err := indexColumns(columns)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d fields, header has %d", ErrMalformed, i+1, len(row), len(columns))
		}
	}
	return &Table{
		columns: append([]string(nil), columns...),
		index:   index,
		rows:    rows,
	}, nil
}

func indexColumns(columns []string) (map[string]int, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: empty header", ErrMalformed)
	}
	index := make(map[string]int, len(columns))
	for i, col := range columns {
		if strings.TrimSpace(col) == "" {
			return nil, fmt.Errorf("%w: column %d has an empty name", ErrMalformed, i+1)
		}
		if _, dup := index[col]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrMalformed, col)
		}
		index[col] = i
	}
	return index, nil
}

// Read parses comma separated text with a header row. Cells matching a null
// token become missing values. A bare quote inside an unquoted field is
// kept as text.
func Read(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	cr := csv.NewReader(bytes.NewReader(data))
	cr.LazyQuotes = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty header", ErrMalformed)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	index, err := indexColumns(header)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0, 64)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		row := make(Row, len(record))
		for i, field := range record {
			if IsNull(field) {
				row[i] = Missing()
				continue
			}
			row[i] = Value(field)
		}
		rows = append(rows, row)
	}
	return &Table{columns: header, index: index, rows: rows}, nil
}

func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

func (t *Table) Columns() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.columns...)
}

func (t *Table) Rows() []Row {
	if t == nil {
		return nil
	}
	return t.rows
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Column returns the position of name in the header.
func (t *Table) Column(name string) (int, bool) {
	if t == nil {
		return 0, false
	}
	i, ok := t.index[name]
	return i, ok
}

func (t *Table) RequireColumns(names ...string) error {
	missing := make([]string, 0)
	for _, name := range names {
		if _, ok := t.Column(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}

// Filter keeps rows for which keep returns true, in their original order,
// and returns the number of rows dropped. keep may return an error to
// abort; the table is left unchanged in that case.
func (t *Table) Filter(keep func(Row) (bool, error)) (int, error) {
	if t == nil {
		return 0, nil
	}
	kept := make([]Row, 0, len(t.rows))
	for _, row := range t.rows {
		ok, err := keep(row)
		if err != nil {
			return 0, err
		}
		if ok {
			kept = append(kept, row)
		}
	}
	dropped := len(t.rows) - len(kept)
	t.rows = kept
	return dropped, nil
}

// FillNull replaces missing cells in column col with value and returns how
// many cells were filled.
func (t *Table) FillNull(col int, value string) int {
	if t == nil {
		return 0
	}
	filled := 0
	for _, row := range t.rows {
		if row[col].Null {
			row[col] = Value(value)
			filled++
		}
	}
	return filled
}

// Float reads a numeric cell. ok is false for a missing value.
func Float(cell Cell) (value float64, ok bool, err error) {
	if cell.Null {
		return 0, false, nil
	}
	v, err := cast.ToFloat64E(strings.TrimSpace(cell.Text))
	if err != nil {
		return 0, false, fmt.Errorf("%w: %q is not numeric", ErrMalformed, cell.Text)
	}
	if math.IsNaN(v) {
		return 0, false, nil
	}
	return v, true, nil
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"20060102",
}

// ParseDate reads date-like text in one of the accepted layouts.
func ParseDate(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, text); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Write emits the header and rows as comma separated text with "\n" line
// endings. Missing cells are written empty.
func (t *Table) Write(w io.Writer) error {
	if t == nil {
		return errors.New("table is nil")
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.columns); err != nil {
		return err
	}
	record := make([]string, len(t.columns))
	for _, row := range t.rows {
		for i, cell := range row {
			if cell.Null {
				record[i] = ""
				continue
			}
			record[i] = cell.Text
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (t *Table) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.Write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
