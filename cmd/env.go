package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/dataset"
	"github.com/sells-group/leadgen-cli/internal/extract"
	"github.com/sells-group/leadgen-cli/internal/mapping"
	"github.com/sells-group/leadgen-cli/internal/registry"
	"github.com/sells-group/leadgen-cli/internal/store"
)

// pipelineEnv holds the file stores every command works against.
type pipelineEnv struct {
	files    *dataset.Store
	mapStore *mapping.Store
	regStore *registry.Store
	extract  *extract.Engine
}

func newPipelineEnv() *pipelineEnv {
	files := dataset.NewStore(cfg.Data.Dir)
	mapStore := mapping.NewStore(files)
	regStore := registry.NewStore(files)
	return &pipelineEnv{
		files:    files,
		mapStore: mapStore,
		regStore: regStore,
		extract:  extract.New(files, mapStore, regStore),
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leadgen.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// recordRun writes the operation and its result envelope to the run
// ledger. Ledger failures are logged, never fatal: the pipeline result
// already landed in the dataset files.
func recordRun(ctx context.Context, command string, request, result map[string]any, status string) {
	st, err := initStore(ctx)
	if err != nil {
		zap.L().Warn("run ledger unavailable", zap.Error(err))
		return
	}
	defer st.Close() //nolint:errcheck

	if err := st.Migrate(ctx); err != nil {
		zap.L().Warn("run ledger migrate failed", zap.Error(err))
		return
	}
	run, err := st.CreateRun(ctx, command, request)
	if err != nil {
		zap.L().Warn("record run failed", zap.Error(err))
		return
	}
	if err := st.CompleteRun(ctx, run.ID, status, result); err != nil {
		zap.L().Warn("complete run failed", zap.Error(err))
	}
}

// toMap round-trips an envelope struct through JSON so the ledger stores
// the same shape the command prints.
func toMap(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseFieldSpecs turns repeated "label=path" flags into a projection map.
func parseFieldSpecs(specs []string) (map[string]string, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	fields := make(map[string]string, len(specs))
	for _, spec := range specs {
		label, path, ok := strings.Cut(spec, "=")
		if !ok || label == "" || path == "" {
			return nil, eris.Errorf("invalid field spec %q, want label=path", spec)
		}
		fields[label] = path
	}
	return fields, nil
}
