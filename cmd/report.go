package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/report"
)

var reportFlags struct {
	where      string
	indexField string
	columns    []string
	output     string
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write qualified leads to a CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env := newPipelineEnv()

		cols, err := parseColumnSpecs(reportFlags.columns)
		if err != nil {
			return err
		}

		eng := report.New(env.files, env.mapStore, env.regStore)
		req := report.Request{
			Where:      reportFlags.where,
			IndexField: reportFlags.indexField,
			Columns:    cols,
			Output:     reportFlags.output,
		}
		out := eng.Generate(req)

		recordRun(cmd.Context(), "report", toMap(req), toMap(out), out.Status)
		return printJSON(out)
	},
}

// parseColumnSpecs turns "Header=field" specs into report columns. A bare
// name is used as both header and field.
func parseColumnSpecs(specs []string) ([]report.Column, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	cols := make([]report.Column, 0, len(specs))
	for _, spec := range specs {
		header, field, ok := strings.Cut(spec, "=")
		if !ok {
			header, field = spec, spec
		}
		if header == "" || field == "" {
			return nil, eris.Errorf("invalid column spec %q, want Header=field", spec)
		}
		cols = append(cols, report.Column{Header: header, Field: field})
	}
	return cols, nil
}

func init() {
	f := reportCmd.Flags()
	f.StringVar(&reportFlags.where, "where", "", "qualification filter, field=value (required)")
	f.StringVar(&reportFlags.indexField, "index-field", "", "join key a lead must carry to be reported")
	f.StringArrayVar(&reportFlags.columns, "column", nil, "CSV column, Header=field (repeatable, required)")
	f.StringVar(&reportFlags.output, "output", "final_leads.csv", "output CSV path, relative to the data dir")
	_ = reportCmd.MarkFlagRequired("where")
	_ = reportCmd.MarkFlagRequired("column")
	rootCmd.AddCommand(reportCmd)
}
