// Package extract composes the path navigator with the mapping store and
// field registry to deliver filtered, paginated, indexed projections of a
// dataset. This is the single read API every downstream stage uses.
package extract

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/dataset"
	"github.com/sells-group/leadgen-cli/internal/jsonpath"
	"github.com/sells-group/leadgen-cli/internal/mapping"
	"github.com/sells-group/leadgen-cli/internal/registry"
)

// ErrInvalidFilter indicates a where clause that does not match the
// field=value grammar.
var ErrInvalidFilter = eris.New("invalid filter")

// Engine evaluates extraction requests.
type Engine struct {
	files    *dataset.Store
	mapping  *mapping.Store
	registry *registry.Store
}

// New creates an extraction Engine.
func New(files *dataset.Store, mapStore *mapping.Store, regStore *registry.Store) *Engine {
	return &Engine{files: files, mapping: mapStore, registry: regStore}
}

// Request selects rows of a dataset and projects values out of them.
// Exactly one of Path (single-path mode) or Fields (label→path projection
// mode) must be set. Offset and Limit of zero mean unset.
type Request struct {
	Source string            `json:"source"`
	Path   string            `json:"path,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
	Where  string            `json:"where,omitempty"`
	Offset int               `json:"offset,omitempty"`
	Limit  int               `json:"limit,omitempty"`
}

// Item is one extraction result, tagged with the row's dataset index.
type Item struct {
	Index int `json:"index"`
	Value any `json:"value"`
}

// Output is the extraction result envelope. Internal failures are reported
// here rather than raised: callers compose extraction results, they do not
// catch errors.
type Output struct {
	Status string `json:"status"`
	Data   []Item `json:"data"`
	Count  int    `json:"count"`
	Error  string `json:"error,omitempty"`
}

func errOutput(err error) Output {
	return Output{Status: "error", Data: []Item{}, Error: err.Error()}
}

// Extract runs one extraction request to completion.
func (e *Engine) Extract(req Request) Output {
	if req.Path == "" && len(req.Fields) == 0 {
		return errOutput(eris.New("extract: must provide either a path or a field projection"))
	}
	if req.Path != "" && len(req.Fields) > 0 {
		return errOutput(eris.New("extract: path and field projection are mutually exclusive"))
	}

	rows, err := e.files.LoadArray(req.Source)
	if err != nil {
		return errOutput(err)
	}

	indices, err := e.selectIndices(req, len(rows))
	if err != nil {
		return errOutput(err)
	}

	if req.Offset > 0 {
		if req.Offset >= len(indices) {
			indices = nil
		} else {
			indices = indices[req.Offset:]
		}
	}
	if req.Limit > 0 && req.Limit < len(indices) {
		indices = indices[:req.Limit]
	}

	var items []Item
	if req.Path != "" {
		items, err = e.extractPath(rows, indices, req.Path)
		if err != nil {
			return errOutput(err)
		}
	} else {
		items = e.extractProjection(rows, indices, req.Fields)
	}

	zap.L().Debug("extraction complete",
		zap.String("source", req.Source),
		zap.String("where", req.Where),
		zap.Int("count", len(items)),
	)

	return Output{Status: "success", Data: items, Count: len(items)}
}

// extractPath evaluates one path against each selected row. Every
// extraction maps over "all rows" conceptually, so a leading [*] is
// stripped and implied.
func (e *Engine) extractPath(rows []any, indices []int, path string) ([]Item, error) {
	segs, err := jsonpath.Parse(path)
	if err != nil {
		return nil, err
	}
	segs = stripLeadingAll(segs)

	items := make([]Item, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(rows) {
			continue
		}
		v, err := jsonpath.Evaluate(rows[idx], segs)
		if err != nil {
			// Heterogeneous rows: a path miss is a null, not a failure.
			v = nil
		}
		items = append(items, Item{Index: idx, Value: v})
	}
	return items, nil
}

// extractProjection evaluates each labeled path independently against each
// selected row. A per-label failure (including a malformed label path)
// yields null for that label only.
func (e *Engine) extractProjection(rows []any, indices []int, fields map[string]string) []Item {
	type parsed struct {
		label string
		segs  []jsonpath.Segment
		bad   bool
	}
	paths := make([]parsed, 0, len(fields))
	for label, p := range fields {
		segs, err := jsonpath.Parse(p)
		if err != nil {
			paths = append(paths, parsed{label: label, bad: true})
			continue
		}
		paths = append(paths, parsed{label: label, segs: stripLeadingAll(segs)})
	}

	items := make([]Item, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(rows) {
			continue
		}
		value := make(map[string]any, len(paths))
		for _, p := range paths {
			if p.bad {
				value[p.label] = nil
				continue
			}
			v, err := jsonpath.Evaluate(rows[idx], p.segs)
			if err != nil {
				v = nil
			}
			value[p.label] = v
		}
		items = append(items, Item{Index: idx, Value: value})
	}
	return items
}

func stripLeadingAll(segs []jsonpath.Segment) []jsonpath.Segment {
	if len(segs) > 0 && segs[0].Kind == jsonpath.KindAll {
		return segs[1:]
	}
	return segs
}

// selectIndices determines which row indices an extraction addresses:
// every row of the dataset, narrowed by the where clause when present.
func (e *Engine) selectIndices(req Request, datasetLen int) ([]int, error) {
	if req.Where == "" {
		all := make([]int, datasetLen)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}

	field, want, err := ParseWhere(req.Where)
	if err != nil {
		return nil, err
	}

	indexField := mapping.DeriveIndexField(req.Source)
	src, err := e.resolveSource(field)
	if err != nil {
		return nil, err
	}

	qualified, err := src.qualifiedIndices(indexField, field, want)
	if err != nil {
		return nil, err
	}

	sort.Ints(qualified)
	return qualified, nil
}

// SaveValues persists extracted values (in result order) as a new dataset.
func (e *Engine) SaveValues(name string, items []Item) error {
	values := make([]any, len(items))
	for i, it := range items {
		values[i] = it.Value
	}
	return e.files.Save(name, values)
}
