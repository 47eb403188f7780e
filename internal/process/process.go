// Package process runs batched model annotation over extracted dataset
// values and lands the structured results as a new registered dataset.
package process

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/dataset"
	"github.com/sells-group/leadgen-cli/internal/extract"
	"github.com/sells-group/leadgen-cli/internal/mapping"
	"github.com/sells-group/leadgen-cli/internal/registry"
	"github.com/sells-group/leadgen-cli/pkg/anthropic"
)

const defaultBatchSize = 20

// Engine wires the extraction engine, the file stores, and the model client
// into a resumable annotation stage.
type Engine struct {
	files    *dataset.Store
	mapStore *mapping.Store
	regStore *registry.Store
	extract  *extract.Engine
	llm      anthropic.Client
}

func New(files *dataset.Store, mapStore *mapping.Store, regStore *registry.Store, ext *extract.Engine, llm anthropic.Client) *Engine {
	return &Engine{files: files, mapStore: mapStore, regStore: regStore, extract: ext, llm: llm}
}

// Request describes one annotation run. Source/Path/Where select the input
// values the same way an extraction does; Task and OutputFields shape the
// model call; OutputFile names the dataset the results land in.
type Request struct {
	Source       string   `json:"source"`
	Path         string   `json:"path"`
	Where        string   `json:"where,omitempty"`
	Limit        int      `json:"limit,omitempty"`
	Task         string   `json:"task"`
	OutputFields []string `json:"output_fields"`
	OutputFile   string   `json:"output_file"`
	Model        string   `json:"model,omitempty"`
	MaxTokens    int64    `json:"max_tokens,omitempty"`
	BatchSize    int      `json:"batch_size,omitempty"`
	DryRun       bool     `json:"dry_run,omitempty"`
}

// Output is the run result envelope.
type Output struct {
	Status     string  `json:"status"`
	OutputFile string  `json:"output_file,omitempty"`
	Processed  int     `json:"processed"`
	Skipped    int     `json:"skipped"`
	Pending    int     `json:"pending,omitempty"`
	Chunks     int     `json:"chunks"`
	Failed     int     `json:"failed_chunks,omitempty"`
	Cost       float64 `json:"estimated_cost,omitempty"`
	Error      string  `json:"error,omitempty"`
}

func errOutput(err error) Output {
	return Output{Status: "error", Error: err.Error()}
}

// DefaultOutputFile names a stage's results file after its source dataset
// and first output field, e.g. postData + isAgency -> postData_isAgency.json.
func DefaultOutputFile(source, field string) string {
	return strings.TrimSuffix(source, ".json") + "_" + field + ".json"
}

// Run executes the annotation stage. Items already present in the output
// file are skipped, so an interrupted run resumes where it stopped. Results
// are saved after every chunk.
func (e *Engine) Run(ctx context.Context, req Request) Output {
	if req.Task == "" || len(req.OutputFields) == 0 {
		return errOutput(eris.New("process: task and output fields are required"))
	}
	if req.OutputFile == "" {
		req.OutputFile = DefaultOutputFile(req.Source, req.OutputFields[0])
	}
	if req.BatchSize <= 0 {
		req.BatchSize = defaultBatchSize
	}

	ext := e.extract.Extract(extract.Request{
		Source: req.Source,
		Path:   req.Path,
		Where:  req.Where,
		Limit:  req.Limit,
	})
	if ext.Status != "success" {
		return errOutput(eris.New("process: extract: " + ext.Error))
	}

	items := make([]anthropic.IndexedItem, 0, len(ext.Data))
	for _, it := range ext.Data {
		if it.Value == nil {
			continue
		}
		items = append(items, anthropic.IndexedItem{Index: it.Index, Value: it.Value})
	}

	done, err := e.processedIndices(req.OutputFile)
	if err != nil {
		return errOutput(err)
	}

	pending := items[:0:0]
	skipped := 0
	for _, it := range items {
		if done[it.Index] {
			skipped++
			continue
		}
		pending = append(pending, it)
	}

	zap.L().Info("process stage starting",
		zap.String("source", req.Source),
		zap.String("output_file", req.OutputFile),
		zap.Int("pending", len(pending)),
		zap.Int("already_processed", skipped),
	)

	if req.DryRun {
		return Output{
			Status:     "dry_run",
			OutputFile: req.OutputFile,
			Pending:    len(pending),
			Skipped:    skipped,
			Chunks:     chunkCount(len(pending), req.BatchSize),
		}
	}

	indexField := mapping.DeriveIndexField(req.Source)
	var usage anthropic.TokenUsage
	processed, chunks := 0, 0

	for start := 0; start < len(pending); start += req.BatchSize {
		end := min(start+req.BatchSize, len(pending))
		chunk := pending[start:end]
		chunks++

		records, u, err := anthropic.Annotate(ctx, e.llm, anthropic.AnnotateRequest{
			Model:        req.Model,
			MaxTokens:    req.MaxTokens,
			Task:         req.Task,
			OutputFields: req.OutputFields,
			Items:        chunk,
		})
		usage.InputTokens += u.InputTokens
		usage.OutputTokens += u.OutputTokens
		if err != nil {
			// Earlier chunks are already on disk, so a rerun resumes
			// past them. Stop here and surface the chunk error whole.
			usage.LogCost(req.Model, "process")
			return Output{
				Status:     "error",
				OutputFile: req.OutputFile,
				Processed:  processed,
				Skipped:    skipped,
				Chunks:     chunks,
				Failed:     1,
				Cost:       usage.EstimateCost(req.Model),
				Error:      eris.Wrapf(err, "process: annotate chunk %d", chunks).Error(),
			}
		}

		if err := e.files.AppendRecords(req.OutputFile, records); err != nil {
			if errors.Is(err, dataset.ErrDuplicateIndex) {
				// A repeated index means results are landing on top of
				// earlier ones. Stop rather than corrupt the file.
				return Output{
					Status:     "error",
					OutputFile: req.OutputFile,
					Processed:  processed,
					Skipped:    skipped,
					Chunks:     chunks,
					Error:      err.Error(),
				}
			}
			return errOutput(eris.Wrap(err, fmt.Sprintf("process: save chunk %d", chunks)))
		}

		upd := e.mapStore.BulkRegister(e.regStore, indexField, records, req.OutputFile)
		if upd.Status != "success" {
			zap.L().Warn("mapping registration failed", zap.String("error", upd.Error))
		}
		processed += len(records)

		zap.L().Info("chunk complete",
			zap.Int("chunk", chunks),
			zap.Int("records", len(records)),
			zap.Int("processed_total", processed),
		)
	}

	usage.LogCost(req.Model, "process")

	return Output{
		Status:     "success",
		OutputFile: req.OutputFile,
		Processed:  processed,
		Skipped:    skipped,
		Chunks:     chunks,
		Cost:       usage.EstimateCost(req.Model),
	}
}

// processedIndices reads the output file, if any, and returns the set of
// indices it already holds.
func (e *Engine) processedIndices(outputFile string) (map[int]bool, error) {
	if !e.files.Exists(outputFile) {
		return map[int]bool{}, nil
	}
	records, err := e.files.LoadRecords(outputFile)
	if err != nil {
		return nil, eris.Wrap(err, "process: load existing output")
	}
	done := make(map[int]bool, len(records))
	for _, rec := range records {
		if idx, ok := dataset.RecordIndex(rec); ok {
			done[idx] = true
		}
	}
	return done, nil
}

func chunkCount(n, size int) int {
	if n == 0 {
		return 0
	}
	return (n + size - 1) / size
}
