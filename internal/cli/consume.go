package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iliyamo/flight-seating/internal/config"
	"github.com/iliyamo/flight-seating/internal/logger"
	"github.com/iliyamo/flight-seating/internal/queue"
)

// ConsumeCmd returns the consume command.
func ConsumeCmd() *cobra.Command {
	var logPath string
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Record seat events from RabbitMQ",
		Long: `Consume the seat.events queue and append one line per event to
the given log file. Reconnects until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loadDotEnv()
			cfg := config.LoadConsumer()
			log := logger.New(cfg.Env)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c := &queue.Consumer{URL: cfg.RabbitURL, LogPath: logPath, Logger: log}
			log.Info("consuming seat events", "queue", queue.SeatEventsQueue, "log", logPath)
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logPath, "log", "logs/seating.log", "File receiving one line per event")
	return cmd
}
