package extract

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/dataset"
)

var whereRe = regexp.MustCompile(`^(\w+)\s*=\s*(.+)$`)

// ParseWhere splits a "field=value" clause and coerces the literal:
// true/false become booleans, all-digit strings become integers, anything
// else stays a string.
func ParseWhere(clause string) (field string, value any, err error) {
	m := whereRe.FindStringSubmatch(strings.TrimSpace(clause))
	if m == nil {
		return "", nil, eris.Wrapf(ErrInvalidFilter, "%q", clause)
	}
	return m[1], CoerceLiteral(m[2]), nil
}

// CoerceLiteral applies the where-clause literal coercion rules.
func CoerceLiteral(raw string) any {
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	if isDigits(raw) {
		n := 0
		for _, c := range raw {
			n = n*10 + int(c-'0')
		}
		return n
	}
	return raw
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// valueSource resolves a field to the row indices (in the extraction's own
// index domain) whose value equals the wanted literal. Two strategies
// exist: fields living in a registered output file, and legacy fields
// attached directly to lead records.
type valueSource interface {
	qualifiedIndices(indexField, field string, want any) ([]int, error)
}

// resolveSource picks the strategy with a single registry lookup.
// Registry-based resolution takes precedence over attached fields.
func (e *Engine) resolveSource(field string) (valueSource, error) {
	outputFile, ok, err := e.registry.Resolve(field)
	if err != nil {
		return nil, err
	}
	if ok {
		return &registeredFileSource{engine: e, outputFile: outputFile}, nil
	}
	return &attachedLeadSource{engine: e}, nil
}

// registeredFileSource qualifies rows through an enrichment output file:
// collect the file's own-domain indices where the field matches, then
// translate them into the extraction's row domain via leads that carry
// both index fields.
type registeredFileSource struct {
	engine     *Engine
	outputFile string
}

func (s *registeredFileSource) qualifiedIndices(indexField, field string, want any) ([]int, error) {
	entry, ok, err := s.engine.registry.FileInfo(s.outputFile)
	if err != nil {
		return nil, err
	}
	fileIndexField := indexField
	if ok && entry.IndexField != "" {
		fileIndexField = entry.IndexField
	}

	records, err := s.engine.files.LoadRecords(s.outputFile)
	if err != nil {
		return nil, err
	}

	matching := map[int]bool{}
	for _, rec := range records {
		if !literalEquals(rec[field], want) {
			continue
		}
		if idx, ok := dataset.RecordIndex(rec); ok {
			matching[idx] = true
		}
	}

	m, err := s.engine.mapping.Load()
	if err != nil {
		return nil, err
	}

	var qualified []int
	for _, lead := range m.Leads {
		ownIdx, ok := lead.Index(fileIndexField)
		if !ok || !matching[ownIdx] {
			continue
		}
		if rowIdx, ok := lead.Index(indexField); ok {
			qualified = append(qualified, rowIdx)
		}
	}
	return qualified, nil
}

// attachedLeadSource qualifies rows by a property stored directly on lead
// records (legacy storage).
type attachedLeadSource struct {
	engine *Engine
}

func (s *attachedLeadSource) qualifiedIndices(indexField, field string, want any) ([]int, error) {
	m, err := s.engine.mapping.Load()
	if err != nil {
		return nil, err
	}

	var qualified []int
	for _, lead := range m.Leads {
		if !literalEquals(lead[field], want) {
			continue
		}
		if rowIdx, ok := lead.Index(indexField); ok {
			qualified = append(qualified, rowIdx)
		}
	}
	return qualified, nil
}

// literalEquals compares a JSON-decoded value against a coerced where
// literal. Numbers decode as float64, so integer literals compare
// numerically.
func literalEquals(got, want any) bool {
	switch w := want.(type) {
	case bool:
		g, ok := got.(bool)
		return ok && g == w
	case int:
		g, ok := dataset.AsInt(got)
		return ok && g == w
	case string:
		g, ok := got.(string)
		return ok && g == w
	default:
		return false
	}
}
