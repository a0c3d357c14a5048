package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/coral-mesh/pipelinescope/internal/cli/helpers"
	"github.com/coral-mesh/pipelinescope/internal/config"
	"github.com/coral-mesh/pipelinescope/internal/llm"
	"github.com/coral-mesh/pipelinescope/internal/logging"
	"github.com/coral-mesh/pipelinescope/internal/report"
	"github.com/coral-mesh/pipelinescope/internal/result"
)

// NewPromptCmd creates the prompt command.
func NewPromptCmd() *cobra.Command {
	var (
		configPath string
		function   string
		raw        bool
		ask        bool
		model      string
		baseURL    string
	)

	cmd := &cobra.Command{
		Use:   "prompt [run-dir]",
		Short: "Print an LLM prompt for optimizing the top hotspot",
		Long: `Print a markdown prompt asking an LLM to optimize a slow function, with the
function's measured and projected metrics filled in.

The top hotspot of the run is used unless --function selects one by its
module:name key. Without any recorded run the prompt keeps placeholders.
Output is rendered for the terminal unless --raw is set or stdout is not a
terminal.

With --ask the prompt is sent to the configured advisor model and the answer
is streamed to stdout. API keys come from OPENAI_API_KEY or GOOGLE_API_KEY.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := helpers.LoadConfig(cmd, configPath)
			ref := ""
			if len(args) == 1 {
				ref = args[0]
			}
			md, err := buildPrompt(cfg, ref, function)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ask {
				adv := cfg.Advisor
				if model != "" {
					adv.Model = model
				}
				if baseURL != "" {
					adv.BaseURL = baseURL
				}
				ctx := cmd.Context()
				if ctx == nil {
					ctx = context.Background()
				}
				return runAsk(ctx, out, adv, md, llm.Get().New)
			}
			if raw || !logging.IsTerminal(out) {
				_, err = io.WriteString(out, md)
				return err
			}
			rendered, err := report.RenderMarkdown(md, terminalWidth(out))
			if err != nil {
				return err
			}
			_, err = io.WriteString(out, rendered)
			return err
		},
	}

	helpers.AddConfigFlag(cmd, &configPath)
	cmd.Flags().StringVarP(&function, "function", "f", "", "Function key (module:name) to build the prompt for")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print plain markdown")
	cmd.Flags().BoolVar(&ask, "ask", false, "Send the prompt to the advisor model and stream its answer")
	cmd.Flags().StringVar(&model, "model", "", "Advisor model as <provider>:<model> (overrides advisor.model)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "OpenAI-compatible endpoint (overrides advisor.base_url)")

	return cmd
}

func buildPrompt(cfg *config.Config, ref, function string) (string, error) {
	dir, err := helpers.ResolveRunDir(ref, cfg.OutputDir)
	if err != nil {
		if ref == "" && function == "" && errors.Is(err, helpers.ErrNoRuns) {
			return report.OptimizationPrompt(nil), nil
		}
		return "", err
	}
	res, err := result.Load(dir)
	if err != nil {
		return "", err
	}

	a := report.NewAnalyzer(res, report.Options{})
	if function != "" {
		for _, fn := range a.All() {
			if fn.Key == function {
				return report.OptimizationPrompt(&fn), nil
			}
		}
		return "", fmt.Errorf("function %q not found in %s", function, dir)
	}

	top, err := a.Hotspots(1)
	if err != nil {
		return "", err
	}
	if len(top) == 0 {
		return report.OptimizationPrompt(nil), nil
	}
	return report.OptimizationPrompt(&top[0]), nil
}

const advisorSystemPrompt = `You are a performance engineer reviewing profiler output from a data pipeline.
Answer with concrete optimizations ordered by expected impact on projected full-dataset time.`

type providerFactory func(ctx context.Context, cfg config.AdvisorConfig) (llm.Provider, error)

// runAsk streams the advisor's answer to md into out.
func runAsk(ctx context.Context, out io.Writer, cfg config.AdvisorConfig, md string, newProvider providerFactory) error {
	if cfg.Model == "" {
		return errors.New("no advisor model configured (set advisor.model or --model)")
	}
	provider, err := newProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create advisor: %w", err)
	}
	if c, ok := provider.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	resp, err := provider.Generate(ctx, llm.GenerateRequest{
		SystemPrompt: advisorSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: md}},
		Stream:       true,
	}, func(chunk string) error {
		_, err := io.WriteString(out, chunk)
		return err
	})
	if err != nil {
		return fmt.Errorf("advisor request failed: %w", err)
	}
	if resp.FinishReason == "length" {
		_, _ = fmt.Fprint(out, "\n\n(answer truncated by the model's length limit)")
	}
	_, err = fmt.Fprintln(out)
	return err
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd())) //nolint:gosec // G115: file descriptors fit in int.
	if err != nil {
		return 0
	}
	return width
}
