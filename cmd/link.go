package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/dataset"
)

var linkFlags struct {
	sourceField string
	targetField string
	indices     []int
	fromFile    string
}

var linkCmd = &cobra.Command{
	Use:   "link-indices",
	Short: "Allocate the next pipeline stage's join keys",
	Long:  "Assigns fresh, monotonically increasing target index values to the leads matching the given source indices, linking one enrichment stage to the next.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env := newPipelineEnv()

		indices := linkFlags.indices
		if linkFlags.fromFile != "" {
			loaded, err := indicesFromFile(env, linkFlags.fromFile)
			if err != nil {
				return err
			}
			indices = append(indices, loaded...)
		}

		out := env.mapStore.Link(linkFlags.sourceField, indices, linkFlags.targetField)
		recordRun(cmd.Context(), "link-indices", map[string]any{
			"source_field": linkFlags.sourceField,
			"target_field": linkFlags.targetField,
			"count":        len(indices),
		}, toMap(out), out.Status)
		return printJSON(out)
	},
}

// indicesFromFile reads index values from a saved extraction file: either a
// bare array of numbers or records with an index field.
func indicesFromFile(env *pipelineEnv, name string) ([]int, error) {
	rows, err := env.files.LoadArray(name)
	if err != nil {
		return nil, err
	}
	var indices []int
	for _, row := range rows {
		if n, ok := dataset.AsInt(row); ok {
			indices = append(indices, n)
			continue
		}
		if rec, ok := row.(map[string]any); ok {
			if n, ok := dataset.RecordIndex(rec); ok {
				indices = append(indices, n)
			}
		}
	}
	return indices, nil
}

func init() {
	f := linkCmd.Flags()
	f.StringVar(&linkFlags.sourceField, "source-field", "", "join key the source indices belong to (required)")
	f.StringVar(&linkFlags.targetField, "target-field", "", "join key to allocate (required)")
	f.IntSliceVar(&linkFlags.indices, "indices", nil, "source index values to link")
	f.StringVar(&linkFlags.fromFile, "from-file", "", "read source indices from a saved extraction file")
	_ = linkCmd.MarkFlagRequired("source-field")
	_ = linkCmd.MarkFlagRequired("target-field")
	rootCmd.AddCommand(linkCmd)
}
