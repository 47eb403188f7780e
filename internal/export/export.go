// Package export pushes qualified leads to handoff targets: an XLSX
// workbook on disk and a Notion database.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadgen-cli/internal/report"
	"github.com/sells-group/leadgen-cli/pkg/notion"
)

// Request describes one export. Lead selection works the same way a CSV
// report does; XLSXPath and NotionDB pick the targets, either or both.
type Request struct {
	Where      string          `json:"where"`
	IndexField string          `json:"index_field,omitempty"`
	Columns    []report.Column `json:"columns"`
	XLSXPath   string          `json:"xlsx_path,omitempty"`
	NotionDB   string          `json:"notion_db,omitempty"`
	TitleField string          `json:"title_field,omitempty"`
}

// Output is the export result envelope.
type Output struct {
	Status        string `json:"status"`
	Leads         int    `json:"leads"`
	XLSXPath      string `json:"xlsx_path,omitempty"`
	NotionCreated int    `json:"notion_created,omitempty"`
	Error         string `json:"error,omitempty"`
}

func errOutput(err error) Output {
	return Output{Status: "error", Error: err.Error()}
}

// Engine assembles lead records and writes them to the configured targets.
type Engine struct {
	report  *report.Engine
	dataDir string
	notion  notion.Client
}

// New creates an export engine. The notion client may be nil when no
// Notion target is configured.
func New(rep *report.Engine, dataDir string, nc notion.Client) *Engine {
	return &Engine{report: rep, dataDir: dataDir, notion: nc}
}

// Run collects qualified leads and exports them. Both targets run
// concurrently when both are requested; the first failure wins.
func (e *Engine) Run(ctx context.Context, req Request) Output {
	if req.Where == "" || len(req.Columns) == 0 {
		return errOutput(eris.New("export: where and columns are required"))
	}
	if req.XLSXPath == "" && req.NotionDB == "" {
		return errOutput(eris.New("export: at least one target is required"))
	}
	if req.NotionDB != "" && e.notion == nil {
		return errOutput(eris.New("export: notion target requested but no token configured"))
	}

	leads, err := e.report.Collect(req.Where, req.IndexField, req.Columns)
	if err != nil {
		return errOutput(err)
	}
	if len(leads) == 0 {
		zap.L().Warn("no qualified leads to export", zap.String("where", req.Where))
		return Output{Status: "success", Leads: 0}
	}

	out := Output{Status: "success", Leads: len(leads)}

	g, gctx := errgroup.WithContext(ctx)
	if req.XLSXPath != "" {
		path := req.XLSXPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(e.dataDir, path)
		}
		out.XLSXPath = path
		g.Go(func() error {
			return writeXLSX(path, req.Columns, leads)
		})
	}
	if req.NotionDB != "" {
		titleField := req.TitleField
		if titleField == "" {
			titleField = req.Columns[0].Header
		}
		g.Go(func() error {
			created, err := notion.ExportLeads(gctx, e.notion, req.NotionDB, titleField, leads)
			out.NotionCreated = created
			return err
		})
	}
	if err := g.Wait(); err != nil {
		out.Status = "error"
		out.Error = err.Error()
		return out
	}

	zap.L().Info("export complete",
		zap.Int("leads", len(leads)),
		zap.String("xlsx", out.XLSXPath),
		zap.String("notion_db", req.NotionDB),
	)
	return out
}

// writeXLSX renders the leads to a single-sheet workbook, header row first.
func writeXLSX(path string, cols []report.Column, leads []map[string]any) error {
	wb := xlsx.NewFile()
	sheet, err := wb.AddSheet("Leads")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, c := range cols {
		header.AddCell().SetString(c.Header)
	}

	for _, lead := range leads {
		row := sheet.AddRow()
		for _, c := range cols {
			setCell(row.AddCell(), lead[c.Header])
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "export: create output dir")
	}
	if err := wb.Save(path); err != nil {
		return eris.Wrap(err, fmt.Sprintf("export: save %s", path))
	}
	return nil
}

func setCell(cell *xlsx.Cell, v any) {
	switch t := v.(type) {
	case nil:
		cell.SetString("")
	case string:
		cell.SetString(t)
	case bool:
		cell.SetBool(t)
	case float64:
		cell.SetFloat(t)
	case int:
		cell.SetInt(t)
	default:
		cell.SetString(fmt.Sprintf("%v", t))
	}
}
