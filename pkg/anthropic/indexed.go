package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// IndexedItem is one input row for an annotation call, tagged with its
// dataset row index. The model must echo the index back on its annotation.
type IndexedItem struct {
	Index int
	Value any
}

// AnnotateRequest describes one batch annotation call: a task performed on
// each item, with a caller-defined set of structured output fields.
type AnnotateRequest struct {
	Model        string
	MaxTokens    int64
	Task         string
	OutputFields []string
	Items        []IndexedItem
}

const annotateSystemPrompt = `You are a precise data processor. For each item, perform the given task and provide structured output.

TASK: %s

For each item, respond with a JSON array containing objects with these exact fields:
- index: the item's index number (REQUIRED - must match the input index)
%s

Be accurate and consistent in your responses.`

// Annotate issues one blocking completion call for a batch of indexed items
// and returns the model's indexed annotation records.
func Annotate(ctx context.Context, client Client, req AnnotateRequest) ([]map[string]any, TokenUsage, error) {
	var fieldLines strings.Builder
	for _, f := range req.OutputFields {
		fmt.Fprintf(&fieldLines, "- %s: your response for this field\n", f)
	}

	var items strings.Builder
	for _, item := range req.Items {
		fmt.Fprintf(&items, "[%d]: %s\n", item.Index, renderValue(item.Value))
	}

	user := fmt.Sprintf("Process these items:\n\n%s\nRespond with ONLY a valid JSON array, no other text.", items.String())

	resp, err := client.CreateMessage(ctx, MessageRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		System:    fmt.Sprintf(annotateSystemPrompt, req.Task, strings.TrimRight(fieldLines.String(), "\n")),
		Messages:  []Message{{Role: "user", Content: user}},
	})
	if err != nil {
		return nil, TokenUsage{}, err
	}

	records, err := parseIndexedReply(resp.Text())
	if err != nil {
		return nil, resp.Usage, err
	}
	return records, resp.Usage, nil
}

func renderValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(buf)
}

// parseIndexedReply decodes the model's reply into indexed records,
// tolerating a markdown code fence and a wrapper object around the array.
func parseIndexedReply(text string) ([]map[string]any, error) {
	text = stripFence(strings.TrimSpace(text))

	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, eris.Wrap(err, "anthropic: parse indexed reply")
	}

	switch v := parsed.(type) {
	case []any:
		return toRecords(v), nil
	case map[string]any:
		for _, key := range []string{"results", "items", "data", "output", "responses"} {
			if arr, ok := v[key].([]any); ok {
				return toRecords(arr), nil
			}
		}
		if _, ok := v["index"]; ok {
			return []map[string]any{v}, nil
		}
	}
	return nil, eris.New("anthropic: reply contained no indexed array")
}

func toRecords(arr []any) []map[string]any {
	records := make([]map[string]any, 0, len(arr))
	for _, v := range arr {
		if rec, ok := v.(map[string]any); ok {
			records = append(records, rec)
		}
	}
	return records
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
