package process

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/dataset"
	"github.com/sells-group/leadgen-cli/internal/extract"
	"github.com/sells-group/leadgen-cli/internal/mapping"
	"github.com/sells-group/leadgen-cli/internal/registry"
	"github.com/sells-group/leadgen-cli/pkg/anthropic"
)

// stubLLM answers calls with canned reply texts, recording the prompts it
// saw. When err is set it fails on errOnCall (every call when errOnCall is
// zero).
type stubLLM struct {
	replies   []string
	calls     int
	prompts   []string
	err       error
	errOnCall int
}

func (s *stubLLM) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if len(req.Messages) > 0 {
		s.prompts = append(s.prompts, req.Messages[0].Content)
	}
	s.calls++
	if s.err != nil && (s.errOnCall == 0 || s.calls == s.errOnCall) {
		return nil, s.err
	}
	reply := s.replies[(s.calls-1)%len(s.replies)]
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: reply}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}, nil
}

func newTestEngine(t *testing.T, llm anthropic.Client) (*Engine, *dataset.Store) {
	t.Helper()
	files := dataset.NewStore(t.TempDir())
	mapStore := mapping.NewStore(files)
	regStore := registry.NewStore(files)
	ext := extract.New(files, mapStore, regStore)
	return New(files, mapStore, regStore, ext, llm), files
}

func seedPosts(t *testing.T, files *dataset.Store) {
	t.Helper()
	require.NoError(t, files.Save("postData", []any{
		map[string]any{"content": "We love the product"},
		map[string]any{"content": "Too expensive for us"},
		map[string]any{"content": "Just migrated away"},
	}))
}

func TestRunAnnotatesAndRegisters(t *testing.T) {
	llm := &stubLLM{replies: []string{
		`[{"index": 0, "sentiment": "positive"},
		  {"index": 1, "sentiment": "negative"},
		  {"index": 2, "sentiment": "negative"}]`,
	}}
	eng, files := newTestEngine(t, llm)
	seedPosts(t, files)

	out := eng.Run(context.Background(), Request{
		Source:       "postData",
		Path:         "content",
		Task:         "Classify the sentiment of each post",
		OutputFields: []string{"sentiment"},
		OutputFile:   "sentiment.json",
	})

	require.Equal(t, "success", out.Status)
	assert.Equal(t, 3, out.Processed)
	assert.Equal(t, 0, out.Skipped)
	assert.Equal(t, 1, out.Chunks)

	records, err := files.LoadRecords("sentiment.json")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "positive", records[0]["sentiment"])

	// Fields land in the registry so extractions can filter on them.
	regStore := registry.NewStore(files)
	file, reg, err := regStore.Resolve("sentiment")
	require.NoError(t, err)
	assert.True(t, reg)
	assert.Equal(t, "sentiment.json", file)

	// Leads in the mapping pick up the join key for the output file.
	m, err := mapping.NewStore(files).Load()
	require.NoError(t, err)
	require.Len(t, m.Leads, 3)
	_, ok := m.Leads[0].Index("postIndex")
	assert.True(t, ok)
}

func TestRunDerivesOutputFile(t *testing.T) {
	llm := &stubLLM{replies: []string{
		`[{"index": 0, "sentiment": "positive"},
		  {"index": 1, "sentiment": "negative"},
		  {"index": 2, "sentiment": "negative"}]`,
	}}
	eng, files := newTestEngine(t, llm)
	seedPosts(t, files)

	out := eng.Run(context.Background(), Request{
		Source:       "postData",
		Path:         "content",
		Task:         "Classify the sentiment of each post",
		OutputFields: []string{"sentiment"},
	})

	require.Equal(t, "success", out.Status)
	assert.Equal(t, "postData_sentiment.json", out.OutputFile)
	assert.True(t, files.Exists("postData_sentiment.json"))
}

func TestDefaultOutputFile(t *testing.T) {
	assert.Equal(t, "postData_isAgency.json", DefaultOutputFile("postData", "isAgency"))
	assert.Equal(t, "postData_isAgency.json", DefaultOutputFile("postData.json", "isAgency"))
}

func TestRunResumesSkippingProcessed(t *testing.T) {
	llm := &stubLLM{replies: []string{`[{"index": 2, "sentiment": "negative"}]`}}
	eng, files := newTestEngine(t, llm)
	seedPosts(t, files)

	// Indices 0 and 1 were handled by an earlier run.
	require.NoError(t, files.Save("sentiment.json", []any{
		map[string]any{"index": float64(0), "sentiment": "positive"},
		map[string]any{"index": float64(1), "sentiment": "negative"},
	}))

	out := eng.Run(context.Background(), Request{
		Source:       "postData",
		Path:         "content",
		Task:         "Classify sentiment",
		OutputFields: []string{"sentiment"},
		OutputFile:   "sentiment.json",
	})

	require.Equal(t, "success", out.Status)
	assert.Equal(t, 1, out.Processed)
	assert.Equal(t, 2, out.Skipped)
	assert.Equal(t, 1, llm.calls)

	records, err := files.LoadRecords("sentiment.json")
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestRunDryRun(t *testing.T) {
	llm := &stubLLM{}
	eng, files := newTestEngine(t, llm)
	seedPosts(t, files)

	out := eng.Run(context.Background(), Request{
		Source:       "postData",
		Path:         "content",
		Task:         "Classify sentiment",
		OutputFields: []string{"sentiment"},
		OutputFile:   "sentiment.json",
		BatchSize:    2,
		DryRun:       true,
	})

	require.Equal(t, "dry_run", out.Status)
	assert.Equal(t, 3, out.Pending)
	assert.Equal(t, 2, out.Chunks)
	assert.Equal(t, 0, llm.calls)
	assert.False(t, files.Exists("sentiment.json"))
}

func TestRunChunksByBatchSize(t *testing.T) {
	llm := &stubLLM{replies: []string{
		`[{"index": 0, "sentiment": "positive"}, {"index": 1, "sentiment": "negative"}]`,
		`[{"index": 2, "sentiment": "negative"}]`,
	}}
	eng, files := newTestEngine(t, llm)
	seedPosts(t, files)

	out := eng.Run(context.Background(), Request{
		Source:       "postData",
		Path:         "content",
		Task:         "Classify sentiment",
		OutputFields: []string{"sentiment"},
		OutputFile:   "sentiment.json",
		BatchSize:    2,
	})

	require.Equal(t, "success", out.Status)
	assert.Equal(t, 2, out.Chunks)
	assert.Equal(t, 3, out.Processed)
	assert.Equal(t, 2, llm.calls)
}

func TestRunSkipsNullValues(t *testing.T) {
	llm := &stubLLM{replies: []string{`[{"index": 0, "sentiment": "positive"}]`}}
	eng, files := newTestEngine(t, llm)
	require.NoError(t, files.Save("postData", []any{
		map[string]any{"content": "We love it"},
		map[string]any{"other": "no content key"},
	}))

	out := eng.Run(context.Background(), Request{
		Source:       "postData",
		Path:         "content",
		Task:         "Classify sentiment",
		OutputFields: []string{"sentiment"},
		OutputFile:   "sentiment.json",
	})

	require.Equal(t, "success", out.Status)
	assert.Equal(t, 1, out.Processed)
}

func TestRunDuplicateIndexStops(t *testing.T) {
	// Index 0 is already in the output file, so the run only submits 1 and
	// 2. The stub model echoes index 0 anyway, which must stop the run
	// before the stale record is overwritten or doubled.
	llm := &stubLLM{replies: []string{`[{"index": 0, "sentiment": "positive"}]`}}
	eng, files := newTestEngine(t, llm)
	seedPosts(t, files)

	require.NoError(t, files.Save("sentiment.json", []any{
		map[string]any{"index": float64(0), "sentiment": "stale"},
	}))

	out := eng.Run(context.Background(), Request{
		Source:       "postData",
		Path:         "content",
		Task:         "Classify sentiment",
		OutputFields: []string{"sentiment"},
		OutputFile:   "sentiment.json",
	})

	require.Equal(t, "error", out.Status)
	assert.Contains(t, out.Error, "duplicate")
	assert.Equal(t, 0, out.Processed)

	records, err := files.LoadRecords("sentiment.json")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "stale", records[0]["sentiment"])
}

func TestRunValidation(t *testing.T) {
	eng, _ := newTestEngine(t, &stubLLM{})

	out := eng.Run(context.Background(), Request{Source: "postData", Path: "content"})
	assert.Equal(t, "error", out.Status)
	assert.Contains(t, out.Error, "required")
}

func TestRunExtractErrorPropagates(t *testing.T) {
	eng, _ := newTestEngine(t, &stubLLM{})

	out := eng.Run(context.Background(), Request{
		Source:       "missing",
		Path:         "content",
		Task:         "Classify",
		OutputFields: []string{"sentiment"},
		OutputFile:   "out.json",
	})
	assert.Equal(t, "error", out.Status)
	assert.NotEmpty(t, out.Error)
}

func TestRunModelFailureAborts(t *testing.T) {
	llm := &stubLLM{err: assert.AnError}
	eng, files := newTestEngine(t, llm)
	seedPosts(t, files)

	out := eng.Run(context.Background(), Request{
		Source:       "postData",
		Path:         "content",
		Task:         "Classify sentiment",
		OutputFields: []string{"sentiment"},
		OutputFile:   "sentiment.json",
	})
	assert.Equal(t, "error", out.Status)
	assert.Equal(t, 0, out.Processed)
	assert.Equal(t, 1, out.Failed)
	assert.Contains(t, out.Error, "chunk 1")
	assert.False(t, files.Exists("sentiment.json"))
}

func TestRunFailedChunkAbortsKeepingEarlier(t *testing.T) {
	// First chunk lands, second fails. The run stops with the chunk error,
	// the first chunk's records stay on disk, and a rerun resumes past them.
	llm := &stubLLM{
		replies: []string{
			`[{"index": 0, "sentiment": "positive"}, {"index": 1, "sentiment": "negative"}]`,
			`[{"index": 2, "sentiment": "negative"}]`,
		},
		err:       assert.AnError,
		errOnCall: 2,
	}
	eng, files := newTestEngine(t, llm)
	seedPosts(t, files)

	req := Request{
		Source:       "postData",
		Path:         "content",
		Task:         "Classify sentiment",
		OutputFields: []string{"sentiment"},
		OutputFile:   "sentiment.json",
		BatchSize:    2,
	}
	out := eng.Run(context.Background(), req)
	require.Equal(t, "error", out.Status)
	assert.Equal(t, 2, out.Processed)
	assert.Equal(t, 2, out.Chunks)
	assert.Equal(t, 1, out.Failed)
	assert.Contains(t, out.Error, "chunk 2")

	records, err := files.LoadRecords("sentiment.json")
	require.NoError(t, err)
	require.Len(t, records, 2)

	retryLLM := &stubLLM{replies: []string{`[{"index": 2, "sentiment": "negative"}]`}}
	mapStore := mapping.NewStore(files)
	regStore := registry.NewStore(files)
	retry := New(files, mapStore, regStore, extract.New(files, mapStore, regStore), retryLLM)
	out = retry.Run(context.Background(), req)
	require.Equal(t, "success", out.Status)
	assert.Equal(t, 1, out.Processed)
	assert.Equal(t, 2, out.Skipped)
}
