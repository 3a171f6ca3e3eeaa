package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/mailclass/internal/model"
)

func labelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "List the categories in model output order",
		Run: func(cmd *cobra.Command, _ []string) {
			for i, name := range model.LabelNames() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d  %s\n", i, name)
			}
		},
	}
}
