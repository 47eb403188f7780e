// Package mapping maintains the cross-dataset join ledger: one lead record
// per source row, carrying <stage>Index fields that join rows across the
// differently-sized datasets each pipeline stage produces, plus any
// enrichment fields attached directly (legacy storage).
package mapping

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/dataset"
)

// MappingFile is the on-disk name of the join ledger.
const MappingFile = "mapping.json"

// Lead is one row of the mapping: a loose field→value map. Keys ending in
// "Index" hold integer row positions in the correspondingly named dataset.
type Lead map[string]any

// Index returns the integer value of an index field, if present.
func (l Lead) Index(field string) (int, bool) {
	return dataset.AsInt(l[field])
}

// Mapping is the ordered sequence of lead records. Record identity is
// positional; records are never deleted or reordered.
type Mapping struct {
	Leads []Lead `json:"leads"`
}

// Registrar records an enrichment output file and its field set. Implemented
// by the field registry; declared here so BulkRegister does not depend on it.
type Registrar interface {
	Register(outputFile string, fields []string, indexField string) error
}

// Store persists the mapping with whole-file read-modify-write semantics.
// Concurrent writers are unsafe; the external driver runs one stage at a time.
type Store struct {
	files *dataset.Store
}

// NewStore creates a mapping Store over the given dataset directory.
func NewStore(files *dataset.Store) *Store {
	return &Store{files: files}
}

// Load reads the mapping file, returning an empty mapping if none exists.
func (s *Store) Load() (*Mapping, error) {
	if !s.files.Exists(MappingFile) {
		return &Mapping{Leads: []Lead{}}, nil
	}
	v, err := s.files.Load(MappingFile)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, eris.New("mapping: file is not an object")
	}

	m := &Mapping{Leads: []Lead{}}
	if rawLeads, ok := obj["leads"].([]any); ok {
		for _, rl := range rawLeads {
			if lead, ok := rl.(map[string]any); ok {
				m.Leads = append(m.Leads, Lead(lead))
			}
		}
	}
	return m, nil
}

// Save atomically overwrites the mapping file.
func (s *Store) Save(m *Mapping) error {
	return s.files.Save(MappingFile, m)
}

// InitOutput reports the result of an Init call.
type InitOutput struct {
	Status     string `json:"status"`
	Created    int    `json:"created"`
	Skipped    int    `json:"skipped"`
	TotalLeads int    `json:"total_leads"`
	Error      string `json:"error,omitempty"`
}

// Init extends the mapping with one lead per row of the named dataset not
// already present under indexField. Existing leads are left untouched, so
// reruns after the dataset grows only add the new rows.
func (s *Store) Init(datasetName, indexField string) InitOutput {
	rows, err := s.files.LoadArray(datasetName)
	if err != nil {
		return InitOutput{Status: "error", Error: err.Error()}
	}

	m, err := s.Load()
	if err != nil {
		return InitOutput{Status: "error", Error: err.Error()}
	}

	existing := make(map[int]bool, len(m.Leads))
	for _, lead := range m.Leads {
		if idx, ok := lead.Index(indexField); ok {
			existing[idx] = true
		}
	}

	created, skipped := 0, 0
	for i := range rows {
		if existing[i] {
			skipped++
			continue
		}
		m.Leads = append(m.Leads, Lead{indexField: i})
		created++
	}

	if err := s.Save(m); err != nil {
		return InitOutput{Status: "error", Error: err.Error()}
	}

	zap.L().Info("mapping initialized",
		zap.String("dataset", datasetName),
		zap.String("index_field", indexField),
		zap.Int("created", created),
		zap.Int("skipped", skipped),
	)

	return InitOutput{Status: "success", Created: created, Skipped: skipped, TotalLeads: len(m.Leads)}
}

// UpdateOutput reports the result of UpdateField or BulkRegister.
type UpdateOutput struct {
	Status  string `json:"status"`
	Updated int    `json:"updated"`
	Error   string `json:"error,omitempty"`
}

// UpdateField sets field = value on every lead whose indexField value is in
// indices. Matching is by index value equality, not lead position.
func (s *Store) UpdateField(indexField string, indices []int, field string, value any) UpdateOutput {
	m, err := s.Load()
	if err != nil {
		return UpdateOutput{Status: "error", Error: err.Error()}
	}

	want := make(map[int]bool, len(indices))
	for _, i := range indices {
		want[i] = true
	}

	updated := 0
	for _, lead := range m.Leads {
		if idx, ok := lead.Index(indexField); ok && want[idx] {
			lead[field] = value
			updated++
		}
	}

	if err := s.Save(m); err != nil {
		return UpdateOutput{Status: "error", Error: err.Error()}
	}
	return UpdateOutput{Status: "success", Updated: updated}
}

// BulkRegister records a stage's enrichment results. With an output file
// name, the file and its field set are registered in the field registry and
// the mapping itself is untouched. Without one, every non-index field of
// each result is copied onto the matching lead (legacy storage).
func (s *Store) BulkRegister(reg Registrar, indexField string, results []map[string]any, outputFile string) UpdateOutput {
	fieldSet := map[string]bool{}
	for _, r := range results {
		for k := range r {
			if k != "index" {
				fieldSet[k] = true
			}
		}
	}
	fields := make([]string, 0, len(fieldSet))
	for f := range fieldSet {
		fields = append(fields, f)
	}

	if outputFile != "" {
		if err := reg.Register(outputFile, fields, indexField); err != nil {
			return UpdateOutput{Status: "error", Error: err.Error()}
		}
		return UpdateOutput{Status: "success", Updated: len(results)}
	}

	m, err := s.Load()
	if err != nil {
		return UpdateOutput{Status: "error", Error: err.Error()}
	}

	// Build the index→lead lookup once; result batches can be large.
	byIndex := make(map[int]Lead, len(m.Leads))
	for _, lead := range m.Leads {
		if idx, ok := lead.Index(indexField); ok {
			byIndex[idx] = lead
		}
	}

	updated := 0
	for _, r := range results {
		idx, ok := dataset.RecordIndex(r)
		if !ok {
			continue
		}
		lead, ok := byIndex[idx]
		if !ok {
			continue
		}
		for k, v := range r {
			if k != "index" {
				lead[k] = v
			}
		}
		updated++
	}

	if err := s.Save(m); err != nil {
		return UpdateOutput{Status: "error", Error: err.Error()}
	}
	return UpdateOutput{Status: "success", Updated: updated}
}

// DeriveIndexField maps a dataset name to its index-field name by
// convention: postData → postIndex, otherwise <name>Index.
func DeriveIndexField(datasetName string) string {
	name := strings.TrimSuffix(datasetName, ".json")
	if strings.HasSuffix(name, "Data") {
		return strings.TrimSuffix(name, "Data") + "Index"
	}
	return name + "Index"
}
