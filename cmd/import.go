package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/ingest"
	"github.com/sells-group/leadgen-cli/internal/mapping"
)

var importFlags struct {
	file    string
	output  string
	initMap bool
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a CSV or XLSX lead list as a dataset",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env := newPipelineEnv()

		records, err := ingest.ReadFile(importFlags.file)
		if err != nil {
			return err
		}

		rows := make([]any, len(records))
		for i, rec := range records {
			rows[i] = rec
		}
		if err := env.files.Save(importFlags.output, rows); err != nil {
			return err
		}
		zap.L().Info("dataset imported",
			zap.String("file", importFlags.file),
			zap.String("dataset", importFlags.output),
			zap.Int("rows", len(rows)),
		)

		result := map[string]any{"status": "success", "rows": len(rows), "dataset": importFlags.output}
		if importFlags.initMap {
			out := env.mapStore.Init(importFlags.output, mapping.DeriveIndexField(importFlags.output))
			result["mapping"] = toMap(out)
		}

		recordRun(cmd.Context(), "import", map[string]any{
			"file":   importFlags.file,
			"output": importFlags.output,
		}, result, "success")
		return printJSON(result)
	},
}

func init() {
	f := importCmd.Flags()
	f.StringVar(&importFlags.file, "file", "", "CSV or XLSX file to import (required)")
	f.StringVar(&importFlags.output, "output", "", "dataset name to save the rows under (required)")
	f.BoolVar(&importFlags.initMap, "init-mapping", false, "seed the lead mapping from the imported dataset")
	_ = importCmd.MarkFlagRequired("file")
	_ = importCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(importCmd)
}
