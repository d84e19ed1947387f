package main

import (
	"context"
	"os/signal"
	"serialq/src/command"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	opts := &command.Options{}

	root := &cobra.Command{
		Use:          "serialq",
		Short:        "Serial job queue over QUIC",
		SilenceUsage: true,
	}
	opts.Bind(root)

	root.AddCommand(
		command.Server{Logger: logger}.Command(ctx, opts),
		command.Client{Logger: logger}.Command(ctx, opts),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		logger.WithContext(ctx).Fatalf("serialq: %v", err)
	}
}
