package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iliyamo/flight-seating/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "flight-seating",
		Short: "Per-flight seat assignment service",
		Long: `flight-seating assigns seats on flights. Every flight is served by
one actor that executes its operations one at a time, so a seat is never
given to two occupants.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.TokenCmd())
	rootCmd.AddCommand(cli.SeatsCmd())
	rootCmd.AddCommand(cli.ConsumeCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
