package datasets

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/tidwall/gjson"

	"training-perf-agent/rows"
)

const (
	DefaultSampleLimit = 5000
	textPreviewLimit   = 8000
)

type Kind string

const (
	KindTable Kind = "table"
	KindText  Kind = "text"
)

type Dataset struct {
	Entry    Entry      `json:"dataset"`
	Kind     Kind       `json:"kind"`
	Rows     []rows.Row `json:"rows,omitempty"`
	RowCount int        `json:"row_count"`
	Note     string     `json:"note,omitempty"`

	Profiles       []rows.ColumnProfile `json:"profiles,omitempty"`
	Columns        []string             `json:"columns,omitempty"`
	NumericColumns []string             `json:"numeric_columns,omitempty"`

	LineCount   int    `json:"line_count,omitempty"`
	TextPreview string `json:"text_preview,omitempty"`

	LoadedAt time.Time `json:"loaded_at"`
}

var lineBreak = regexp.MustCompile(`\r?\n`)

// Load reads one dataset, keeping at most sampleLimit rows
// (DefaultSampleLimit when <= 0).
func Load(ctx context.Context, entry Entry, sampleLimit int) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sampleLimit <= 0 {
		sampleLimit = DefaultSampleLimit
	}

	data, err := os.ReadFile(entry.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", entry.ID, err)
	}

	ds := &Dataset{Entry: entry, LoadedAt: time.Now()}
	switch entry.Extension {
	case "md", "txt":
		text := string(data)
		ds.Kind = KindText
		ds.LineCount = len(lineBreak.Split(text, -1))
		preview := []rune(text)
		if len(preview) > textPreviewLimit {
			preview = preview[:textPreviewLimit]
		}
		ds.TextPreview = string(preview)
		ds.Note = "Text preview only. Tabular analyses are disabled."
		return ds, nil
	case "json":
		err = ds.fromJSON(data, sampleLimit)
	case "csv":
		err = ds.fromCSV(data, sampleLimit)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, entry.Extension)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", entry.ID, err)
	}

	if ds.RowCount > len(ds.Rows) {
		sample := fmt.Sprintf("Showing a sample of %d rows from %d total rows.", len(ds.Rows), ds.RowCount)
		if ds.Note != "" {
			ds.Note += " " + sample
		} else {
			ds.Note = sample
		}
	}

	ds.Kind = KindTable
	ds.Profiles = rows.BuildColumnProfiles(ds.Rows)
	ds.Columns = make([]string, 0, len(ds.Profiles))
	for _, p := range ds.Profiles {
		ds.Columns = append(ds.Columns, p.Column)
	}
	ds.NumericColumns = rows.NumericColumns(ds.Profiles)
	return ds, nil
}

func sampleRows(items []gjson.Result, limit int) []rows.Row {
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]rows.Row, 0, len(items))
	for _, item := range items {
		out = append(out, rows.NormalizeRow(item.Value()))
	}
	return out
}

// fromJSON takes an array root as rows. An object root uses its largest
// array-valued field, or becomes a single row.
func (ds *Dataset) fromJSON(data []byte, limit int) error {
	if !gjson.ValidBytes(data) {
		return errors.New("invalid JSON")
	}
	root := gjson.ParseBytes(data)

	switch {
	case root.IsArray():
		items := root.Array()
		ds.Rows = sampleRows(items, limit)
		ds.RowCount = len(items)
	case root.IsObject():
		var bestKey string
		var best []gjson.Result
		found := false
		root.ForEach(func(key, value gjson.Result) bool {
			if !value.IsArray() {
				return true
			}
			items := value.Array()
			if !found || len(items) > len(best) {
				bestKey, best, found = key.String(), items, true
			}
			return true
		})
		if found {
			ds.Rows = sampleRows(best, limit)
			ds.RowCount = len(best)
			ds.Note = fmt.Sprintf("Using array field %q from JSON object.", bestKey)
		} else {
			ds.Rows = []rows.Row{rows.NormalizeRow(root.Value())}
			ds.RowCount = 1
			ds.Note = "JSON object converted to one-row table."
		}
	default:
		ds.Rows = []rows.Row{{"value": rows.NormalizeValue(root.Value())}}
		ds.RowCount = 1
		ds.Note = "Scalar JSON value converted to one-row table."
	}
	return nil
}

// fromCSV reads a header row followed by records. Cells stay strings; numeric
// coercion happens at analysis time.
func (ds *Dataset) fromCSV(data []byte, limit int) error {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		ds.RowCount++
		if len(ds.Rows) >= limit {
			continue
		}
		row := make(rows.Row, len(header))
		for i, column := range header {
			if i < len(record) {
				row[column] = record[i]
			} else {
				row[column] = nil
			}
		}
		ds.Rows = append(ds.Rows, row)
	}
	return nil
}
