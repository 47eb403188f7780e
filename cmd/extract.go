package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/extract"
)

var extractFlags struct {
	source string
	path   string
	fields []string
	where  string
	offset int
	limit  int
	save   string
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract values from a dataset by path",
	Long:  "Navigates a path expression over every row of a dataset, or projects several labeled paths at once, optionally filtered by an enrichment field.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env := newPipelineEnv()

		fields, err := parseFieldSpecs(extractFlags.fields)
		if err != nil {
			return err
		}

		req := extract.Request{
			Source: extractFlags.source,
			Path:   extractFlags.path,
			Fields: fields,
			Where:  extractFlags.where,
			Offset: extractFlags.offset,
			Limit:  extractFlags.limit,
		}
		out := env.extract.Extract(req)

		if out.Status == "success" && extractFlags.save != "" {
			if err := env.extract.SaveValues(extractFlags.save, out.Data); err != nil {
				return err
			}
		}

		recordRun(cmd.Context(), "extract", toMap(req), toMap(out), out.Status)
		return printJSON(out)
	},
}

func init() {
	f := extractCmd.Flags()
	f.StringVar(&extractFlags.source, "source", "", "dataset name (required)")
	f.StringVar(&extractFlags.path, "path", "", "path expression, e.g. 'author.name' or 'posts[*].content'")
	f.StringArrayVar(&extractFlags.fields, "field", nil, "labeled projection, label=path (repeatable, mutually exclusive with --path)")
	f.StringVar(&extractFlags.where, "where", "", "enrichment filter, field=value")
	f.IntVar(&extractFlags.offset, "offset", 0, "skip the first N qualified rows")
	f.IntVar(&extractFlags.limit, "limit", 0, "cap the number of qualified rows")
	f.StringVar(&extractFlags.save, "save", "", "save extracted items to this dataset file")
	_ = extractCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(extractCmd)
}
