// Package registry maintains the field provenance directory: which
// enrichment output file is authoritative for each field name, and which
// index-field domain that file's records use. Downstream consumers resolve
// a field through the registry without knowing which stage produced it.
package registry

import (
	"errors"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/dataset"
)

// RegistryFile is the on-disk name of the field directory.
const RegistryFile = "registry.json"

// FileEntry describes one registered enrichment output file.
type FileEntry struct {
	Fields     []string `json:"fields"`
	IndexField string   `json:"index_field"`
}

// Registry maps output files to their field sets and, reversed, each field
// name to the one file that is authoritative for it (last registration wins).
type Registry struct {
	Files  map[string]FileEntry `json:"files"`
	Fields map[string]string    `json:"fields"`
}

// Store persists the registry with whole-file read-modify-write semantics.
type Store struct {
	files *dataset.Store
}

// NewStore creates a registry Store over the given dataset directory.
func NewStore(files *dataset.Store) *Store {
	return &Store{files: files}
}

// Load reads the registry file, returning an empty registry if none exists.
func (s *Store) Load() (*Registry, error) {
	reg := &Registry{
		Files:  map[string]FileEntry{},
		Fields: map[string]string{},
	}
	if !s.files.Exists(RegistryFile) {
		return reg, nil
	}

	v, err := s.files.Load(RegistryFile)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, eris.New("registry: file is not an object")
	}

	if rawFiles, ok := obj["files"].(map[string]any); ok {
		for name, rawEntry := range rawFiles {
			entry, ok := rawEntry.(map[string]any)
			if !ok {
				continue
			}
			fe := FileEntry{}
			if idx, ok := entry["index_field"].(string); ok {
				fe.IndexField = idx
			}
			if rawFields, ok := entry["fields"].([]any); ok {
				for _, rf := range rawFields {
					if f, ok := rf.(string); ok {
						fe.Fields = append(fe.Fields, f)
					}
				}
			}
			reg.Files[name] = fe
		}
	}
	if rawFields, ok := obj["fields"].(map[string]any); ok {
		for field, rawFile := range rawFields {
			if file, ok := rawFile.(string); ok {
				reg.Fields[field] = file
			}
		}
	}
	return reg, nil
}

// Save atomically overwrites the registry file.
func (s *Store) Save(reg *Registry) error {
	return s.files.Save(RegistryFile, reg)
}

// Register records an output file and its field set, overwriting any prior
// registration for that file and repointing every listed field at it. The
// literal "index" key is never a resolvable field name.
func (s *Store) Register(outputFile string, fields []string, indexField string) error {
	reg, err := s.Load()
	if err != nil {
		return err
	}

	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "index" {
			kept = append(kept, f)
		}
	}
	sort.Strings(kept)

	reg.Files[outputFile] = FileEntry{Fields: kept, IndexField: indexField}
	for _, f := range kept {
		reg.Fields[f] = outputFile
	}

	if err := s.Save(reg); err != nil {
		return err
	}

	zap.L().Info("output file registered",
		zap.String("output_file", outputFile),
		zap.Strings("fields", kept),
		zap.String("index_field", indexField),
	)
	return nil
}

// Resolve returns the output file authoritative for a field name, if any.
func (s *Store) Resolve(field string) (string, bool, error) {
	reg, err := s.Load()
	if err != nil {
		return "", false, err
	}
	file, ok := reg.Fields[field]
	return file, ok, nil
}

// FileInfo returns the registration entry for an output file, if any.
func (s *Store) FileInfo(outputFile string) (FileEntry, bool, error) {
	reg, err := s.Load()
	if err != nil {
		return FileEntry{}, false, err
	}
	entry, ok := reg.Files[outputFile]
	return entry, ok, nil
}

// Lookup loads the output file registered for field and returns the value
// of that field on the record whose index equals indexValue. Returns nil
// when the field is unregistered, the file is missing, or no record
// matches; a provenance miss is not an error.
func (s *Store) Lookup(field string, indexValue int) any {
	file, ok, err := s.Resolve(field)
	if err != nil || !ok {
		return nil
	}

	records, err := s.files.LoadRecords(file)
	if err != nil {
		if !errors.Is(err, dataset.ErrNotFound) {
			zap.L().Warn("registry: lookup failed to load output file",
				zap.String("output_file", file),
				zap.Error(err),
			)
		}
		return nil
	}

	for _, rec := range records {
		if idx, ok := dataset.RecordIndex(rec); ok && idx == indexValue {
			return rec[field]
		}
	}
	return nil
}
