package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/mapping"
	"github.com/sells-group/leadgen-cli/pkg/actor"
)

var scrapeFlags struct {
	actorID string
	input   string
	output  string
	initMap bool
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Run a scraping actor and land its results as a dataset",
	Long:  "Starts an actor run on the scraping platform, waits for it to finish, and saves the dataset items. Optionally seeds the lead mapping from the new dataset.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env := newPipelineEnv()

		if cfg.Actor.Token == "" {
			return eris.New("actor token is required (LEADGEN_ACTOR_TOKEN)")
		}

		var input map[string]any
		if scrapeFlags.input != "" {
			if err := json.Unmarshal([]byte(scrapeFlags.input), &input); err != nil {
				return eris.Wrap(err, "parse actor input")
			}
		}

		client := actor.NewClient(cfg.Actor.Token, actor.WithBaseURL(cfg.Actor.BaseURL))
		items, err := actor.RunAndFetch(ctx, client, scrapeFlags.actorID, input)
		if err != nil {
			recordRun(ctx, "scrape", map[string]any{"actor_id": scrapeFlags.actorID},
				map[string]any{"error": err.Error()}, "error")
			return err
		}

		if err := env.files.Save(scrapeFlags.output, items); err != nil {
			return err
		}
		zap.L().Info("dataset saved",
			zap.String("dataset", scrapeFlags.output),
			zap.Int("items", len(items)),
		)

		result := map[string]any{"status": "success", "items": len(items), "dataset": scrapeFlags.output}
		if scrapeFlags.initMap {
			out := env.mapStore.Init(scrapeFlags.output, mapping.DeriveIndexField(scrapeFlags.output))
			result["mapping"] = toMap(out)
		}

		recordRun(ctx, "scrape", map[string]any{
			"actor_id": scrapeFlags.actorID,
			"output":   scrapeFlags.output,
		}, result, "success")
		return printJSON(result)
	},
}

func init() {
	f := scrapeCmd.Flags()
	f.StringVar(&scrapeFlags.actorID, "actor", "", "actor id, e.g. harvestapi~linkedin-post-search (required)")
	f.StringVar(&scrapeFlags.input, "input", "", "actor input as a JSON object")
	f.StringVar(&scrapeFlags.output, "output", "", "dataset name to save the items under (required)")
	f.BoolVar(&scrapeFlags.initMap, "init-mapping", false, "seed the lead mapping from the saved dataset")
	_ = scrapeCmd.MarkFlagRequired("actor")
	_ = scrapeCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(scrapeCmd)
}
