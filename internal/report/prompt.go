package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
)

const promptHeader = `# Optimizing a bottleneck function

Use this prompt with the LLM of your choice to optimize a function PipelineScope ranked as a bottleneck.

## Role
You are an expert Go performance engineer. You analyze real profiling data, find the cause of slowness, and rewrite code to be faster while keeping behavior and interfaces unchanged.

## Objective
- Analyze the function in the context of the pipeline.
- Use the profiling data below to explain why it is slow.
- Propose an optimized version of the function.
- Explain the changes and any trade-offs or risks.
- Keep inputs, outputs, and side effects identical.

## Pipeline context
[Describe in a sentence or two what the pipeline does.]
`

const promptPlaceholderMetrics = `## Bottleneck metrics
- Function: [e.g. (*Loader).Load]
- Package: [e.g. github.com/acme/etl]
- Observed total time: [e.g. 3.2s]
- Share of pipeline time: [e.g. 47%]
- Projected time at expected size: [e.g. 2h 6m]
- Calls: [e.g. 10,000]
`

const promptFooter = `
## Code to optimize
[Paste the full function here.]

## Constraints
- Keep the function name, signature, and receiver.
- Produce the same outputs for the same inputs, including errors.
- Prefer the standard library and existing dependencies.
- Keep the code readable; note any trade-off between memory and speed.

## What I want back
1. Where the time is most likely spent and which operations look expensive.
2. The full optimized function.
3. What changed, why it is faster, and what it costs.
4. Optional: broader pipeline changes that would help further.
`

// OptimizationPrompt returns a markdown prompt for fn. With a nil fn the metric
// section keeps placeholders to fill in by hand.
func OptimizationPrompt(fn *Function) string {
	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString("\n")
	if fn == nil {
		b.WriteString(promptPlaceholderMetrics)
	} else {
		b.WriteString("## Bottleneck metrics\n")
		fmt.Fprintf(&b, "- Function: %s\n", fn.Identity.Name)
		fmt.Fprintf(&b, "- Package: %s\n", fn.Identity.Module)
		fmt.Fprintf(&b, "- Observed total time: %s (%.2fms self)\n", FormatDurationMs(fn.TotalTimeMs), fn.SelfTimeMs)
		fmt.Fprintf(&b, "- Share of pipeline time: %.1f%%\n", fn.Percentage)
		if fn.Projected {
			fmt.Fprintf(&b, "- Projected time at expected size: %s\n", FormatDurationMs(fn.ProjectedTimeMs))
			fmt.Fprintf(&b, "- Calls: %s observed, %s projected\n", FormatCount(fn.CallCount), FormatCount(fn.ProjectedCalls))
		} else {
			fmt.Fprintf(&b, "- Calls: %s\n", FormatCount(fn.CallCount))
		}
	}
	b.WriteString(promptFooter)
	return b.String()
}

// RenderMarkdown renders md for the terminal, honoring NO_COLOR.
func RenderMarkdown(md string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if os.Getenv("NO_COLOR") != "" {
		opts = append(opts, glamour.WithStylePath("notty"))
	} else {
		opts = append(opts, glamour.WithAutoStyle())
	}

	renderer, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return out, nil
}
