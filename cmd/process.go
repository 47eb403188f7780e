package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/process"
	"github.com/sells-group/leadgen-cli/pkg/anthropic"
)

var processFlags struct {
	source       string
	path         string
	where        string
	limit        int
	task         string
	outputFields []string
	outputFile   string
	model        string
	batchSize    int
	dryRun       bool
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Annotate extracted values with Claude",
	Long:  "Extracts values by path, sends them to the model in index-tagged batches, and appends the structured results to a registered output file. Interrupted runs resume where they stopped.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env := newPipelineEnv()
		llm := anthropic.NewClient(cfg.Anthropic.Key)
		eng := process.New(env.files, env.mapStore, env.regStore, env.extract, llm)

		model := processFlags.model
		if model == "" {
			model = cfg.Anthropic.Model
		}
		batchSize := processFlags.batchSize
		if batchSize == 0 {
			batchSize = cfg.Anthropic.MaxBatchSize
		}

		req := process.Request{
			Source:       processFlags.source,
			Path:         processFlags.path,
			Where:        processFlags.where,
			Limit:        processFlags.limit,
			Task:         processFlags.task,
			OutputFields: processFlags.outputFields,
			OutputFile:   processFlags.outputFile,
			Model:        model,
			MaxTokens:    int64(cfg.Anthropic.MaxTokens),
			BatchSize:    batchSize,
			DryRun:       processFlags.dryRun,
		}
		out := eng.Run(cmd.Context(), req)

		recordRun(cmd.Context(), "process", toMap(req), toMap(out), out.Status)
		return printJSON(out)
	},
}

func init() {
	f := processCmd.Flags()
	f.StringVar(&processFlags.source, "source", "", "dataset to extract input values from (required)")
	f.StringVar(&processFlags.path, "path", "", "path expression selecting the value per row (required)")
	f.StringVar(&processFlags.where, "where", "", "enrichment filter, field=value")
	f.IntVar(&processFlags.limit, "limit", 0, "cap the number of rows to process")
	f.StringVar(&processFlags.task, "task", "", "annotation task given to the model (required)")
	f.StringSliceVar(&processFlags.outputFields, "output-field", nil, "structured field the model must return (repeatable, required)")
	f.StringVar(&processFlags.outputFile, "output-file", "", "output file the results land in (default <source>_<firstField>.json)")
	f.StringVar(&processFlags.model, "model", "", "model override (default from config)")
	f.IntVar(&processFlags.batchSize, "batch-size", 0, "items per model call (default from config)")
	f.BoolVar(&processFlags.dryRun, "dry-run", false, "report what would be processed without calling the model")
	_ = processCmd.MarkFlagRequired("source")
	_ = processCmd.MarkFlagRequired("path")
	_ = processCmd.MarkFlagRequired("task")
	_ = processCmd.MarkFlagRequired("output-field")
	rootCmd.AddCommand(processCmd)
}
