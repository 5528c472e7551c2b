package csvchat

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/mwiater/csvchat/internal/chat"
	"github.com/mwiater/csvchat/internal/logging"
	"github.com/mwiater/csvchat/internal/rag"
	"github.com/mwiater/csvchat/internal/util"
	"github.com/spf13/cobra"
)

// maxRowWidth caps how much of each retrieved row is echoed.
const maxRowWidth = 160

var askShowRows bool

// askCmd answers a single question and streams the answer to stdout.
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask one question and stream the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return fmt.Errorf("question is required")
		}

		cfg := GetConfig()
		if err := requireDataset(cfg); err != nil {
			return err
		}

		provider, err := newProvider(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := provider.Close(); err != nil {
				logging.LogEvent("provider shutdown error: %v", err)
			}
		}()

		out := cmd.OutOrStdout()
		return chat.Run(cfg, provider, func(ctx context.Context, session *chat.Session, cancel context.CancelFunc) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()
			return runAsk(ctx, out, session, question, askShowRows)
		})
	},
}

func runAsk(ctx context.Context, out io.Writer, session *chat.Session, question string, showRows bool) error {
	label := color.New(color.FgMagenta, color.Bold)
	label.Fprint(out, "Assistant: ")
	answer, err := session.Ask(ctx, question, func(fragment string) {
		fmt.Fprint(out, fragment)
	})
	fmt.Fprintln(out)
	if err != nil {
		return err
	}

	if answer.Err != nil {
		logging.LogEvent("[CHAT %s] answer failed: %v", session.ID, answer.Err)
	}
	if showRows {
		fmt.Fprintln(out)
		printRows(out, answer)
	}
	if session.Settings().Debug && answer.Meta.Done {
		color.New(color.FgHiBlack).Fprintf(out, "  >>> [Prompt Eval: %d Tokens] [Response Eval: %d Tokens] [Retrieval: %s] [Total: %s]\n",
			answer.Meta.PromptEvalCount, answer.Meta.EvalCount, answer.Retrieval, answer.Duration)
	}
	return nil
}

func printRows(out io.Writer, answer chat.Answer) {
	heading := color.New(color.FgCyan, color.Bold)
	heading.Fprintln(out, "Top-matching rows (used as context):")
	for i, record := range answer.Rows {
		score := color.New(color.FgYellow).Sprintf("%.3f", answer.Results[i].Score)
		values := record.Values()
		pairs := make([]string, len(values))
		for j, col := range record.Columns() {
			pairs[j] = col + "=" + values[j]
		}
		fmt.Fprintf(out, "  ROW %d (%s): %s\n", record.Index, score, util.TruncateRunes(strings.Join(pairs, rag.Delimiter), maxRowWidth))
	}
	fmt.Fprintln(out)
}

func init() {
	askCmd.Flags().BoolVar(&askShowRows, "rows", false, "print the rows the answer was grounded on")
	rootCmd.AddCommand(askCmd)
}
