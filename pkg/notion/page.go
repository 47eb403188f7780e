package notion

import (
	"context"
	"fmt"
	"sort"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// maxRichTextLen is Notion's per-block rich text limit.
const maxRichTextLen = 2000

// LeadPage builds a page create request for one lead record. The titleField
// value becomes the page title; every other field becomes a property typed
// by its Go value (bool -> checkbox, number -> number, rest -> rich text).
func LeadPage(dbID, titleField string, lead map[string]any) *notionapi.PageCreateRequest {
	props := notionapi.Properties{
		titleField: notionapi.TitleProperty{
			Title: []notionapi.RichText{{Text: &notionapi.Text{Content: stringify(lead[titleField])}}},
		},
	}

	// Sorted so repeated exports of the same lead produce the same request.
	fields := make([]string, 0, len(lead))
	for f := range lead {
		if f != titleField {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)

	for _, f := range fields {
		switch v := lead[f].(type) {
		case nil:
			continue
		case bool:
			props[f] = notionapi.CheckboxProperty{Checkbox: v}
		case float64:
			props[f] = notionapi.NumberProperty{Number: v}
		case int:
			props[f] = notionapi.NumberProperty{Number: float64(v)}
		default:
			text := stringify(v)
			if len(text) > maxRichTextLen {
				text = text[:maxRichTextLen]
			}
			props[f] = notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: text}}},
			}
		}
	}

	return &notionapi.PageCreateRequest{
		Parent:     notionapi.Parent{Type: notionapi.ParentTypeDatabaseID, DatabaseID: notionapi.DatabaseID(dbID)},
		Properties: props,
	}
}

// ExportLeads creates one page per lead, skipping leads whose title already
// exists in the database. Returns the number of pages created.
func ExportLeads(ctx context.Context, c Client, dbID, titleField string, leads []map[string]any) (int, error) {
	existing, err := ExistingTitles(ctx, c, dbID, titleField)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, lead := range leads {
		title := stringify(lead[titleField])
		if title == "" || existing[title] {
			continue
		}
		if _, err := c.CreatePage(ctx, LeadPage(dbID, titleField, lead)); err != nil {
			return created, eris.Wrap(err, fmt.Sprintf("notion: export lead %q", title))
		}
		existing[title] = true
		created++
	}

	zap.L().Info("notion export complete",
		zap.String("database", dbID),
		zap.Int("created", created),
		zap.Int("skipped", len(leads)-created),
	)
	return created, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		// Whole numbers render without a decimal point.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
