package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/dataset"
	"github.com/sells-group/leadgen-cli/internal/mapping"
	"github.com/sells-group/leadgen-cli/internal/registry"
)

func newTestEngine(t *testing.T) (*Engine, *dataset.Store) {
	t.Helper()
	files := dataset.NewStore(t.TempDir())
	return New(files, mapping.NewStore(files), registry.NewStore(files)), files
}

// seedPipeline builds a small mapping with an attached qualification flag,
// a registered profile file, and one unqualified lead.
func seedPipeline(t *testing.T, files *dataset.Store) {
	t.Helper()

	require.NoError(t, files.Save(mapping.MappingFile, map[string]any{
		"leads": []any{
			map[string]any{"postIndex": float64(0), "profileIndex": float64(0), "isStartup": true, "companyName": "Acme"},
			map[string]any{"postIndex": float64(1), "profileIndex": float64(1), "isStartup": false, "companyName": "BigCo"},
			map[string]any{"postIndex": float64(2), "isStartup": true, "companyName": "NoProfile"},
		},
	}))

	require.NoError(t, files.Save("profileData.json", []any{
		map[string]any{"index": float64(0), "firstName": "Ada", "lastName": "Lovelace"},
		map[string]any{"index": float64(1), "firstName": "Bob", "lastName": "Jones"},
	}))

	regStore := registry.NewStore(files)
	require.NoError(t, regStore.Register("profileData.json", []string{"firstName", "lastName"}, "profileIndex"))
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestGenerate(t *testing.T) {
	eng, files := newTestEngine(t)
	seedPipeline(t, files)

	out := eng.Generate(Request{
		Where:      "isStartup=true",
		IndexField: "profileIndex",
		Columns: []Column{
			{Header: "FirstName", Field: "firstName"},
			{Header: "LastName", Field: "lastName"},
			{Header: "Company", Field: "companyName"},
		},
		Output: "final_leads.csv",
	})

	require.Equal(t, "success", out.Status)
	assert.Equal(t, 1, out.Rows)

	rows := readCSV(t, out.Path)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"FirstName", "LastName", "Company"}, rows[0])
	assert.Equal(t, []string{"Ada", "Lovelace", "Acme"}, rows[1])
}

func TestGenerateRegisteredWhereField(t *testing.T) {
	eng, files := newTestEngine(t)
	seedPipeline(t, files)

	// Qualify on a field living in the registered file instead of one
	// attached to the lead.
	out := eng.Generate(Request{
		Where: "firstName=Ada",
		Columns: []Column{
			{Header: "Company", Field: "companyName"},
		},
		Output: "by_name.csv",
	})

	require.Equal(t, "success", out.Status)
	assert.Equal(t, 1, out.Rows)
	rows := readCSV(t, out.Path)
	assert.Equal(t, []string{"Acme"}, rows[1])
}

func TestGenerateNoQualifiedLeads(t *testing.T) {
	eng, files := newTestEngine(t)
	seedPipeline(t, files)

	out := eng.Generate(Request{
		Where:   "isStartup=maybe",
		Columns: []Column{{Header: "Company", Field: "companyName"}},
		Output:  "empty.csv",
	})

	require.Equal(t, "success", out.Status)
	assert.Equal(t, 0, out.Rows)
	assert.Empty(t, out.Path)
	assert.NoFileExists(t, filepath.Join(files.Dir(), "empty.csv"))
}

func TestGenerateMissingValuesRenderEmpty(t *testing.T) {
	eng, files := newTestEngine(t)
	seedPipeline(t, files)

	// Lead 2 is qualified but has no profileIndex, so registered fields
	// resolve to nothing.
	out := eng.Generate(Request{
		Where: "isStartup=true",
		Columns: []Column{
			{Header: "FirstName", Field: "firstName"},
			{Header: "Company", Field: "companyName"},
		},
		Output: "all_startups.csv",
	})

	require.Equal(t, "success", out.Status)
	assert.Equal(t, 2, out.Rows)
	rows := readCSV(t, out.Path)
	assert.Equal(t, []string{"", "NoProfile"}, rows[2])
}

func TestGenerateValidation(t *testing.T) {
	eng, _ := newTestEngine(t)

	out := eng.Generate(Request{Where: "isStartup=true"})
	assert.Equal(t, "error", out.Status)
	assert.Contains(t, out.Error, "required")

	out = eng.Generate(Request{
		Where:   "not a clause",
		Columns: []Column{{Header: "A", Field: "a"}},
		Output:  "x.csv",
	})
	assert.Equal(t, "error", out.Status)
}
