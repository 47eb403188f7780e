// Package report renders qualified leads from the mapping into a flat CSV
// for handoff.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/dataset"
	"github.com/sells-group/leadgen-cli/internal/extract"
	"github.com/sells-group/leadgen-cli/internal/mapping"
	"github.com/sells-group/leadgen-cli/internal/registry"
)

// Column maps a CSV header to a field name. Fields resolve through the
// registry when registered, falling back to values attached directly to
// the lead.
type Column struct {
	Header string `json:"header"`
	Field  string `json:"field"`
}

// Request describes one report. Where qualifies leads ("field=value");
// IndexField names the join key a lead must carry to appear at all.
type Request struct {
	Where      string   `json:"where"`
	IndexField string   `json:"index_field"`
	Columns    []Column `json:"columns"`
	Output     string   `json:"output"`
}

// Output is the report result envelope.
type Output struct {
	Status string `json:"status"`
	Rows   int    `json:"rows"`
	Path   string `json:"path,omitempty"`
	Error  string `json:"error,omitempty"`
}

func errOutput(err error) Output {
	return Output{Status: "error", Error: err.Error()}
}

// Engine resolves report columns against the mapping and registry.
type Engine struct {
	files    *dataset.Store
	mapStore *mapping.Store
	regStore *registry.Store
}

func New(files *dataset.Store, mapStore *mapping.Store, regStore *registry.Store) *Engine {
	return &Engine{files: files, mapStore: mapStore, regStore: regStore}
}

// Collect resolves one record per qualified lead, keyed by column header.
// Values are raw, not stringified, so other render targets can type them.
func (e *Engine) Collect(where, indexField string, cols []Column) ([]map[string]any, error) {
	whereField, want, err := extract.ParseWhere(where)
	if err != nil {
		return nil, err
	}

	m, err := e.mapStore.Load()
	if err != nil {
		return nil, eris.Wrap(err, "report: load mapping")
	}

	cache := newFileCache(e.files, e.regStore)

	var out []map[string]any
	for _, lead := range m.Leads {
		if indexField != "" {
			if _, ok := lead.Index(indexField); !ok {
				continue
			}
		}
		got, err := cache.resolve(lead, whereField)
		if err != nil {
			return nil, err
		}
		if !valueEquals(got, want) {
			continue
		}

		rec := make(map[string]any, len(cols))
		for _, col := range cols {
			v, err := cache.resolve(lead, col.Field)
			if err != nil {
				return nil, err
			}
			rec[col.Header] = v
		}
		out = append(out, rec)
	}
	return out, nil
}

// Generate writes one CSV row per qualified lead. A report with no
// qualified leads writes nothing and reports zero rows.
func (e *Engine) Generate(req Request) Output {
	if req.Where == "" || len(req.Columns) == 0 || req.Output == "" {
		return errOutput(eris.New("report: where, columns, and output are required"))
	}

	records, err := e.Collect(req.Where, req.IndexField, req.Columns)
	if err != nil {
		return errOutput(err)
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(req.Columns))
		for i, col := range req.Columns {
			row[i] = stringify(rec[col.Header])
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		zap.L().Warn("no qualified leads to report", zap.String("where", req.Where))
		return Output{Status: "success", Rows: 0}
	}

	path := req.Output
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.files.Dir(), path)
	}
	if err := writeCSV(path, req.Columns, rows); err != nil {
		return errOutput(err)
	}

	zap.L().Info("report generated",
		zap.String("path", path),
		zap.Int("rows", len(rows)),
	)
	return Output{Status: "success", Rows: len(rows), Path: path}
}

func writeCSV(path string, cols []Column, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "report: create output dir")
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, fmt.Sprintf("report: create %s", path))
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Header
	}
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "report: write header")
	}
	if err := w.WriteAll(rows); err != nil {
		return eris.Wrap(err, "report: write rows")
	}
	w.Flush()
	return eris.Wrap(w.Error(), "report: flush")
}

// fileCache resolves fields through the registry, loading each registered
// file once and indexing its records by their index value.
type fileCache struct {
	files    *dataset.Store
	regStore *registry.Store
	byFile   map[string]map[int]map[string]any
}

func newFileCache(files *dataset.Store, regStore *registry.Store) *fileCache {
	return &fileCache{files: files, regStore: regStore, byFile: map[string]map[int]map[string]any{}}
}

// resolve returns the lead's value for field: from the registered file the
// field lives in, joined through the file's index field, or from the lead
// itself when the field is not registered. Misses yield nil.
func (c *fileCache) resolve(lead mapping.Lead, field string) (any, error) {
	file, registered, err := c.regStore.Resolve(field)
	if err != nil {
		return nil, err
	}
	if !registered {
		return lead[field], nil
	}

	entry, _, err := c.regStore.FileInfo(file)
	if err != nil {
		return nil, err
	}
	idx, ok := lead.Index(entry.IndexField)
	if !ok {
		return nil, nil
	}

	records, ok := c.byFile[file]
	if !ok {
		loaded, err := c.files.LoadRecords(file)
		if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("report: load %s", file))
		}
		records = make(map[int]map[string]any, len(loaded))
		for _, rec := range loaded {
			if i, ok := dataset.RecordIndex(rec); ok {
				records[i] = rec
			}
		}
		c.byFile[file] = records
	}

	rec, ok := records[idx]
	if !ok {
		return nil, nil
	}
	return rec[field], nil
}

func valueEquals(got, want any) bool {
	if gi, ok := dataset.AsInt(got); ok {
		if wi, ok := dataset.AsInt(want); ok {
			return gi == wi
		}
	}
	return got == want
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
