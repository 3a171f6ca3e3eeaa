package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/mailclass/internal/config"
	"github.com/crimson-sun/mailclass/internal/logging"
)

var (
	version = "dev"

	cfgFile string
	cfg     *config.Config

	rootCmd = &cobra.Command{
		Use:   "mailclass",
		Short: "Classify emails into six categories with a local BERT model",
		Long: `mailclass sorts email text into Promotions, Spam, Social Media Updates,
Forum Updates, Code Verification or Work Updates.

The model is fetched from the Hugging Face hub on first use, cached on disk,
and run locally through ONNX Runtime.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().String("model", "", "model directory or hub repository (owner/name[@revision])")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().String("format", "", "output format (pretty, ndjson)")

	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(inboxCmd())
	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(labelsCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, errorStyle.Render("✗ "+err.Error()))
		if h := hint(err); h != "" {
			fmt.Fprintln(os.Stderr, subtleStyle.Render("  "+h))
		}
		os.Exit(1)
	}
}

func initConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	override := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	override("model", &c.Model.Identifier)
	override("log-level", &c.Log.Level)
	override("log-format", &c.Log.Format)
	override("format", &c.Output.Format)

	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	logging.Init(c.Log.Format, logging.ParseLevel(c.Log.Level))
	cfg = c
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mailclass %s\n", version)
		},
	}
}
