package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/mailclass/internal/model"
	"github.com/crimson-sun/mailclass/internal/output"
)

const maxStdinBytes = 1 << 20

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [text...]",
		Short: "Classify one email",
		Long: `Classify the text given as arguments, or read it from stdin when no
arguments are given. --subject and --body classify a structured email.`,
		Example: `  mailclass classify "Your verification code is 482915"
  mailclass classify --subject "Sprint review" --body "Moved to 3pm"
  cat email.txt | mailclass classify`,
		RunE: runClassify,
	}
	cmd.Flags().String("subject", "", "email subject")
	cmd.Flags().String("body", "", "email body")
	return cmd
}

func runClassify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	subject, _ := cmd.Flags().GetString("subject")
	body, _ := cmd.Flags().GetString("body")
	email, err := readEmail(cmd.InOrStdin(), args, subject, body)
	if err != nil {
		return err
	}

	eng := newEngine(cfg, cmd.ErrOrStderr())
	defer eng.Close()

	// A single email always shows its full distribution.
	out, err := newOutput(cfg, cmd.OutOrStdout(), output.Full)
	if err != nil {
		return err
	}
	return classifyTo(ctx, eng, out, email)
}

type textClassifier interface {
	Classify(ctx context.Context, text string) (model.Result, error)
}

// classifyTo writes the classification of email to out and closes out. A
// failed Close is reported when nothing failed before it.
func classifyTo(ctx context.Context, c textClassifier, out output.Output, email model.Email) (err error) {
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	res, err := c.Classify(ctx, email.Text())
	if err != nil {
		return err
	}
	return out.Write(ctx, output.Record{
		From:    email.From,
		Subject: email.Subject,
		Result:  res,
	})
}

// readEmail takes the text from flags, then arguments, then a piped stdin.
func readEmail(stdin io.Reader, args []string, subject, body string) (model.Email, error) {
	if subject != "" || body != "" {
		return model.Email{Subject: subject, Body: body}, nil
	}
	if len(args) > 0 {
		return model.Email{Body: strings.Join(args, " ")}, nil
	}
	if f, ok := stdin.(*os.File); ok {
		if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
			// Interactive terminal with nothing piped in.
			return model.Email{}, nil
		}
	}
	data, err := io.ReadAll(io.LimitReader(stdin, maxStdinBytes))
	if err != nil {
		return model.Email{}, fmt.Errorf("read stdin: %w", err)
	}
	return model.Email{Body: string(data)}, nil
}
