package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func fetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch [identifier]",
		Short: "Download a model into the local cache",
		Long: `Download the model artifacts (ONNX graph, vocabulary, configs) so that
later commands start without network access. Defaults to the configured
model. With --verify the model is also opened and checked against the
label set, which needs ONNX Runtime.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runFetch,
	}
	cmd.Flags().Bool("verify", false, "open the model after downloading")
	return cmd
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := cfg.Model.Ref()
	if len(args) == 1 {
		id = args[0]
	}

	snap, err := newHubClient(cfg, cmd.ErrOrStderr()).Resolve(ctx, id)
	if err != nil {
		return err
	}

	if verify, _ := cmd.Flags().GetBool("verify"); verify {
		eng := newEngine(cfg, nil)
		defer eng.Close()
		h, err := eng.Load(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), subtleStyle.Render(fmt.Sprintf("verified: %d-token budget", h.MaxTokens())))
	}

	fmt.Fprintln(cmd.ErrOrStderr(), successStyle.Render("✓ "+id))
	fmt.Fprintln(cmd.OutOrStdout(), snap.Dir)
	return nil
}
