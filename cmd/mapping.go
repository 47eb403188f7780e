package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/extract"
	"github.com/sells-group/leadgen-cli/internal/mapping"
)

// -- init-mapping --

var initMappingFlags struct {
	source     string
	indexField string
}

var initMappingCmd = &cobra.Command{
	Use:   "init-mapping",
	Short: "Seed the lead mapping from a dataset",
	Long:  "Creates one lead per dataset row, keyed by the dataset's index field. Reruns only add leads for rows that appeared since.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env := newPipelineEnv()

		indexField := initMappingFlags.indexField
		if indexField == "" {
			indexField = mapping.DeriveIndexField(initMappingFlags.source)
		}

		out := env.mapStore.Init(initMappingFlags.source, indexField)
		recordRun(cmd.Context(), "init-mapping", map[string]any{
			"source":      initMappingFlags.source,
			"index_field": indexField,
		}, toMap(out), out.Status)
		return printJSON(out)
	},
}

// -- update-mapping --

var updateMappingFlags struct {
	indexField string
	indices    []int
	field      string
	value      string
}

var updateMappingCmd = &cobra.Command{
	Use:   "update-mapping",
	Short: "Set a field on selected leads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env := newPipelineEnv()

		out := env.mapStore.UpdateField(
			updateMappingFlags.indexField,
			updateMappingFlags.indices,
			updateMappingFlags.field,
			extract.CoerceLiteral(updateMappingFlags.value),
		)
		recordRun(cmd.Context(), "update-mapping", map[string]any{
			"index_field": updateMappingFlags.indexField,
			"field":       updateMappingFlags.field,
			"value":       updateMappingFlags.value,
			"count":       len(updateMappingFlags.indices),
		}, toMap(out), out.Status)
		return printJSON(out)
	},
}

func init() {
	f := initMappingCmd.Flags()
	f.StringVar(&initMappingFlags.source, "source", "", "dataset to seed leads from (required)")
	f.StringVar(&initMappingFlags.indexField, "index-field", "", "join key name (default derived from the dataset name)")
	_ = initMappingCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(initMappingCmd)

	f = updateMappingCmd.Flags()
	f.StringVar(&updateMappingFlags.indexField, "index-field", "", "join key the indices refer to (required)")
	f.IntSliceVar(&updateMappingFlags.indices, "indices", nil, "index values of the leads to update (required)")
	f.StringVar(&updateMappingFlags.field, "field", "", "field name to set (required)")
	f.StringVar(&updateMappingFlags.value, "value", "", "value to set, coerced like a filter literal")
	_ = updateMappingCmd.MarkFlagRequired("index-field")
	_ = updateMappingCmd.MarkFlagRequired("indices")
	_ = updateMappingCmd.MarkFlagRequired("field")
	rootCmd.AddCommand(updateMappingCmd)
}
