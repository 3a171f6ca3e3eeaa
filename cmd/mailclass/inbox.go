package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crimson-sun/mailclass/internal/inbox"
	"github.com/crimson-sun/mailclass/internal/model"
	"github.com/crimson-sun/mailclass/internal/output"
	"github.com/crimson-sun/mailclass/internal/pipeline"
)

func inboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Classify a batch of emails",
		Long: `Classify a generated demo inbox, or the emails of a JSON Lines file
(one {"id", "from", "subject", "body", "expected"} object per line).
With --file - emails are read from stdin and classified as they arrive.

When emails carry an expected label, the summary reports accuracy.`,
		Example: `  mailclass inbox -n 20 --seed 7
  mailclass inbox --file emails.jsonl --format ndjson
  tail -f emails.jsonl | mailclass inbox --file -`,
		RunE: runInbox,
	}
	cmd.Flags().Uint64("seed", 42, "seed of the generated inbox")
	cmd.Flags().IntP("count", "n", 12, "number of generated emails")
	cmd.Flags().String("file", "", "JSON Lines file to classify instead (- for stdin)")
	cmd.Flags().Int("batch-size", 32, "emails per forward pass")
	return cmd
}

func runInbox(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()
	seed, _ := flags.GetUint64("seed")
	count, _ := flags.GetInt("count")
	path, _ := flags.GetString("file")
	batchSize, _ := flags.GetInt("batch-size")

	verbosity, err := output.ParseVerbosity(cfg.Output.Verbosity)
	if err != nil {
		return err
	}

	eng := newEngine(cfg, cmd.ErrOrStderr())
	defer eng.Close()

	out, err := newOutput(cfg, cmd.OutOrStdout(), verbosity)
	if err != nil {
		return err
	}
	p := pipeline.New(eng, out, pipeline.WithBatchSize(batchSize))

	var sum pipeline.Summary
	switch path {
	case "-":
		sum, err = streamInbox(ctx, p, cmd.InOrStdin())
	case "":
		var emails []model.Email
		if emails, err = inbox.Generate(seed, count); err == nil {
			sum, err = p.Run(ctx, emails)
		}
	default:
		var emails []model.Email
		if emails, err = readInboxFile(path); err == nil {
			sum, err = p.Run(ctx, emails)
		}
	}
	if cerr := p.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	// Keep stdout pure NDJSON.
	w := cmd.OutOrStdout()
	if cfg.Output.Format == "ndjson" {
		w = cmd.ErrOrStderr()
	}
	fmt.Fprintln(w, renderSummary(sum))
	return nil
}

func streamInbox(ctx context.Context, p *pipeline.Pipeline, r io.Reader) (pipeline.Summary, error) {
	ch := make(chan model.Email)
	var sum pipeline.Summary

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return inbox.StreamJSONL(gctx, r, ch)
	})
	g.Go(func() error {
		var err error
		sum, err = p.Stream(gctx, ch)
		return err
	})
	err := g.Wait()
	return sum, err
}

func readInboxFile(path string) ([]model.Email, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return inbox.ReadJSONL(f)
}

func renderSummary(s pipeline.Summary) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%d emails classified", s.Classified)))
	b.WriteString("\n")

	name := lipgloss.NewStyle().Width(22)
	for _, label := range model.LabelNames() {
		n := s.Counts[label]
		line := name.Render(label) + fmt.Sprintf("%4d", n)
		if n == 0 {
			line = subtleStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}

	if acc, ok := s.Accuracy(); ok {
		b.WriteString(successStyle.Render(fmt.Sprintf("accuracy %s (%d/%d labeled)", formatPercent(acc), s.Correct, s.Labeled)))
		b.WriteString("\n")
	}
	if s.Skipped > 0 {
		b.WriteString(errorStyle.Render(fmt.Sprintf("%d skipped", s.Skipped)))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
