package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/export"
	"github.com/sells-group/leadgen-cli/internal/report"
	"github.com/sells-group/leadgen-cli/pkg/notion"
)

var exportFlags struct {
	where      string
	indexField string
	columns    []string
	xlsxPath   string
	notionDB   string
	titleField string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Push qualified leads to XLSX or Notion",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env := newPipelineEnv()

		cols, err := parseColumnSpecs(exportFlags.columns)
		if err != nil {
			return err
		}

		notionDB := exportFlags.notionDB
		if notionDB == "" && exportFlags.xlsxPath == "" {
			notionDB = cfg.Notion.LeadDB
		}
		var nc notion.Client
		if notionDB != "" && cfg.Notion.Token != "" {
			nc = notion.NewClient(cfg.Notion.Token)
		}

		rep := report.New(env.files, env.mapStore, env.regStore)
		eng := export.New(rep, cfg.Data.Dir, nc)

		req := export.Request{
			Where:      exportFlags.where,
			IndexField: exportFlags.indexField,
			Columns:    cols,
			XLSXPath:   exportFlags.xlsxPath,
			NotionDB:   notionDB,
			TitleField: exportFlags.titleField,
		}
		out := eng.Run(cmd.Context(), req)

		recordRun(cmd.Context(), "export", toMap(req), toMap(out), out.Status)
		return printJSON(out)
	},
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportFlags.where, "where", "", "qualification filter, field=value (required)")
	f.StringVar(&exportFlags.indexField, "index-field", "", "join key a lead must carry to be exported")
	f.StringArrayVar(&exportFlags.columns, "column", nil, "export column, Header=field (repeatable, required)")
	f.StringVar(&exportFlags.xlsxPath, "xlsx", "", "write an XLSX workbook at this path")
	f.StringVar(&exportFlags.notionDB, "notion-db", "", "create pages in this Notion database (default from config)")
	f.StringVar(&exportFlags.titleField, "title-field", "", "column header used as the Notion page title (default first column)")
	_ = exportCmd.MarkFlagRequired("where")
	_ = exportCmd.MarkFlagRequired("column")
	rootCmd.AddCommand(exportCmd)
}
