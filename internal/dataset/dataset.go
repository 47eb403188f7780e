// Package dataset manages the flat JSON-array files that hold each pipeline
// stage's output. One file per logical dataset name under the working
// directory; files are append-only across reruns of the producing stage.
package dataset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var (
	// ErrNotFound indicates a referenced dataset or output file is missing.
	ErrNotFound = eris.New("dataset not found")
	// ErrDuplicateIndex indicates an append would leave the target output
	// file with a repeated index value.
	ErrDuplicateIndex = eris.New("duplicate index")
)

// Store reads and writes dataset files under a working directory.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the working directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the on-disk path for a dataset name, appending .json when
// the name carries no suffix.
func (s *Store) Path(name string) string {
	if strings.HasSuffix(name, ".json") {
		return filepath.Join(s.dir, name)
	}
	return filepath.Join(s.dir, name+".json")
}

// Exists reports whether the named dataset file is present.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Load reads and decodes a dataset file. Producers write with inconsistent
// encodings, so decoding tries UTF-8, then UTF-16, then Latin-1.
func (s *Store) Load(name string) (any, error) {
	path := s.Path(name)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(ErrNotFound, "%s", path)
		}
		return nil, eris.Wrapf(err, "dataset: read %s", path)
	}
	return decode(path, raw)
}

func decode(path string, raw []byte) (any, error) {
	if utf8.Valid(raw) {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
	}

	for _, enc := range []encoding.Encoding{
		unicode.UTF16(unicode.LittleEndian, unicode.UseBOM),
		charmap.ISO8859_1,
	} {
		decoded, err := enc.NewDecoder().Bytes(raw)
		if err != nil {
			continue
		}
		var v any
		if err := json.Unmarshal(decoded, &v); err == nil {
			return v, nil
		}
	}

	return nil, eris.Errorf("dataset: could not decode %s", path)
}

// LoadArray loads a dataset and requires it to be a JSON array.
func (s *Store) LoadArray(name string) ([]any, error) {
	v, err := s.Load(name)
	if err != nil {
		return nil, err
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, eris.Errorf("dataset: %s is not an array", name)
	}
	return arr, nil
}

// LoadRecords loads an enrichment output file: an array of {index, fields...}
// objects. Non-object elements are skipped with a warning.
func (s *Store) LoadRecords(name string) ([]map[string]any, error) {
	arr, err := s.LoadArray(name)
	if err != nil {
		return nil, err
	}
	records := make([]map[string]any, 0, len(arr))
	for i, v := range arr {
		rec, ok := v.(map[string]any)
		if !ok {
			zap.L().Warn("dataset: skipping non-object record",
				zap.String("dataset", name),
				zap.Int("position", i),
			)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Save writes a dataset file atomically (temp file + rename), creating the
// working directory if needed.
func (s *Store) Save(name string, data any) error {
	path := s.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "dataset: mkdir %s", filepath.Dir(path))
	}

	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "dataset: marshal %s", name)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".dataset-*")
	if err != nil {
		return eris.Wrap(err, "dataset: create temp")
	}
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return eris.Wrapf(err, "dataset: write %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrapf(err, "dataset: close temp for %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrapf(err, "dataset: rename into %s", path)
	}
	return nil
}

// AppendRecords appends enrichment records to the named output file,
// rejecting any batch that repeats an index, either against records already
// on disk or within the batch itself. On rejection
// the on-disk file is left untouched; silent duplication would corrupt the
// provenance the registry depends on.
func (s *Store) AppendRecords(name string, records []map[string]any) error {
	var existing []map[string]any
	if s.Exists(name) {
		loaded, err := s.LoadRecords(name)
		if err != nil {
			return err
		}
		existing = loaded
	}

	seen := make(map[int]bool, len(existing))
	for _, rec := range existing {
		if idx, ok := RecordIndex(rec); ok {
			seen[idx] = true
		}
	}

	var dups []int
	for _, rec := range records {
		idx, ok := RecordIndex(rec)
		if !ok {
			continue
		}
		if seen[idx] {
			dups = append(dups, idx)
			continue
		}
		seen[idx] = true
	}
	if len(dups) > 0 {
		return eris.Wrapf(ErrDuplicateIndex, "indices %v repeated in %s", dups, name)
	}

	combined := make([]map[string]any, 0, len(existing)+len(records))
	combined = append(combined, existing...)
	combined = append(combined, records...)
	return s.Save(name, combined)
}

// RecordIndex extracts the integer "index" field from an enrichment record.
func RecordIndex(rec map[string]any) (int, bool) {
	return AsInt(rec["index"])
}

// AsInt coerces the numeric representations a JSON decode can produce
// into an int.
func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
