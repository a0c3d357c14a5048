package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/pipelinescope/internal/result"
	"github.com/coral-mesh/pipelinescope/internal/safe"
)

//go:embed templates/summary.html.tmpl
var templateFS embed.FS

// HotspotCount is the number of hotspots shown in summaries.
const HotspotCount = 5

var summaryTemplate = template.Must(
	template.New("summary.html.tmpl").
		Funcs(template.FuncMap{
			"formatTime": FormatDurationMs,
			"count":      formatAnyCount,
			"opt":        formatOptional,
		}).
		ParseFS(templateFS, "templates/summary.html.tmpl"),
)

type summaryData struct {
	Title              string
	Generated          string
	Metadata           result.Metadata
	Hotspots           []Function
	Modules            []Module
	Functions          []Function
	HasGPU             bool
	Prompt             string
	MinTimeThresholdMs float64
	MinTimePercentage  float64
}

// RenderHTML writes the static HTML summary of the analyzed run.
func RenderHTML(w io.Writer, a *Analyzer, title string, generated time.Time) error {
	hotspots, err := a.Hotspots(HotspotCount)
	if err != nil {
		return err
	}
	functions, err := a.Functions()
	if err != nil {
		return err
	}

	data := summaryData{
		Title:              title,
		Generated:          generated.Format("2006-01-02 15:04:05"),
		Metadata:           a.Result().Metadata,
		Hotspots:           hotspots,
		Modules:            a.ByModule(),
		Functions:          functions,
		HasGPU:             a.HasGPUData(),
		Prompt:             OptimizationPrompt(firstOrNil(hotspots)),
		MinTimeThresholdMs: a.opts.MinTimeThresholdMs,
		MinTimePercentage:  a.opts.MinTimePercentage,
	}
	if err := summaryTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render summary: %w", err)
	}
	return nil
}

// WriteHTML renders the summary to path atomically.
func WriteHTML(path string, a *Analyzer, title string, generated time.Time, logger zerolog.Logger) error {
	var buf bytes.Buffer
	if err := RenderHTML(&buf, a, title, generated); err != nil {
		return err
	}
	if err := safe.WriteFileAtomic(path, buf.Bytes(), 0o644, logger); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func firstOrNil(fns []Function) *Function {
	if len(fns) == 0 {
		return nil
	}
	return &fns[0]
}

func formatAnyCount(v any) string {
	switch n := v.(type) {
	case int:
		return FormatCount(int64(n))
	case int64:
		return FormatCount(n)
	default:
		return fmt.Sprint(v)
	}
}

func formatOptional(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}
