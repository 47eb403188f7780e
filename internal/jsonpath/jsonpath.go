// Package jsonpath implements the compact path notation used to address
// values inside scraped datasets, e.g. "[*].author.profileUrl" or
// "results[0].title". Paths are evaluated against JSON decoded into any
// (map[string]any, []any, string, float64, bool, nil).
package jsonpath

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

var (
	// ErrMalformedPath indicates unparsable path syntax.
	ErrMalformedPath = eris.New("malformed path")
	// ErrTypeMismatch indicates a segment applied to a value of the wrong shape.
	ErrTypeMismatch = eris.New("type mismatch")
	// ErrOutOfRange indicates a fixed index segment beyond array bounds.
	ErrOutOfRange = eris.New("index out of range")
)

// Kind discriminates path segment variants.
type Kind int

const (
	// KindKey is object-member access (".name").
	KindKey Kind = iota
	// KindIndex is fixed array-position access ("[3]").
	KindIndex
	// KindAll maps over every element of the current array ("[*]").
	KindAll
)

// Segment is one step of a parsed path.
type Segment struct {
	Kind  Kind
	Key   string
	Index int
}

// Entry is one element of an indexed traversal result. Index is the
// element's position in the original array, regardless of how many
// siblings evaluated to null.
type Entry struct {
	Index int `json:"index"`
	Value any `json:"value"`
}

// Parse splits a path like "[*].author.name" into segments. The only hard
// syntax requirement is that every '[' has a matching ']' and bracket
// contents are '*' or a decimal integer.
func Parse(path string) ([]Segment, error) {
	var segs []Segment
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			segs = append(segs, Segment{Kind: KindKey, Key: current.String()})
			current.Reset()
		}
	}

	for i := 0; i < len(path); {
		switch path[i] {
		case '[':
			flush()
			j := strings.IndexByte(path[i:], ']')
			if j < 0 {
				return nil, eris.Wrapf(ErrMalformedPath, "unclosed '[' at %d in %q", i, path)
			}
			content := path[i+1 : i+j]
			if content == "*" {
				segs = append(segs, Segment{Kind: KindAll})
			} else {
				n, err := strconv.Atoi(content)
				if err != nil {
					return nil, eris.Wrapf(ErrMalformedPath, "bad bracket content %q in %q", content, path)
				}
				segs = append(segs, Segment{Kind: KindIndex, Index: n})
			}
			i += j + 1
		case '.':
			flush()
			i++
		default:
			current.WriteByte(path[i])
			i++
		}
	}
	flush()

	return segs, nil
}

// Evaluate walks value along segments. An empty segment list returns the
// input unchanged. A KindAll segment yields []Entry, one per element of
// the current array; per-element failures are absorbed and recorded as a
// nil Value so heterogeneous rows never abort a whole traversal.
func Evaluate(value any, segs []Segment) (any, error) {
	if len(segs) == 0 {
		return value, nil
	}

	seg, rest := segs[0], segs[1:]

	switch seg.Kind {
	case KindAll:
		arr, ok := value.([]any)
		if !ok {
			return nil, eris.Wrapf(ErrTypeMismatch, "expected array for [*], got %T", value)
		}
		entries := make([]Entry, len(arr))
		for i, item := range arr {
			v, err := Evaluate(item, rest)
			if err != nil {
				v = nil
			}
			entries[i] = Entry{Index: i, Value: v}
		}
		return entries, nil

	case KindIndex:
		arr, ok := value.([]any)
		if !ok {
			return nil, eris.Wrapf(ErrTypeMismatch, "expected array for [%d], got %T", seg.Index, value)
		}
		if seg.Index < 0 || seg.Index >= len(arr) {
			return nil, eris.Wrapf(ErrOutOfRange, "index %d, array length %d", seg.Index, len(arr))
		}
		return Evaluate(arr[seg.Index], rest)

	default: // KindKey
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, eris.Wrapf(ErrTypeMismatch, "expected object for .%s, got %T", seg.Key, value)
		}
		// Absent members yield nil, matching loose scraped-data schemas;
		// a later segment on the nil will report the mismatch.
		return Evaluate(obj[seg.Key], rest)
	}
}
