package command

import (
	"context"
	"serialq/src/config"
	"serialq/src/queue"
	"serialq/src/server"
	"serialq/src/server/metrics"
	"serialq/src/server/stream_handler"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type Server struct {
	Logger *logrus.Logger
}

func (cmd Server) Command(ctx context.Context, opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "run the job server, one job at a time",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := opts.Load(cmd.Logger)
			if err != nil {
				return err
			}
			return cmd.main(ctx, cfg)
		},
	}
}

func (cmd Server) main(ctx context.Context, cfg *config.Config) error {
	logger := logrus.NewEntry(cmd.Logger)

	m := metrics.New(metrics.WithLogger(logger.WithField("component", "metrics")))
	if err := m.OpenEvents(cfg.Metrics.EventsPath); err != nil {
		return errors.Wrap(err, "server : failed to open metrics events")
	}
	if err := m.OpenSamples(cfg.Metrics.SamplesPath); err != nil {
		return errors.Wrap(err, "server : failed to open metrics samples")
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.WithError(err).Warn("failed to close metrics")
		}
	}()

	if cfg.Metrics.SampleInterval > 0 {
		go m.Run(ctx, cfg.Metrics.SampleInterval)
	}

	q := queue.NewSerialQueue(
		queue.WithObserver(m),
		queue.WithLogger(logger.WithField("component", "queue")),
	)
	handler := stream_handler.SimulatedHandler{
		Delay:   cfg.Handler.Delay,
		MaxWork: cfg.Handler.MaxWork,
	}
	srv := server.NewServer(cfg.Server, q, handler, logger.WithField("component", "server"))

	err := srv.Start(ctx)

	s := m.Snapshot()
	logger.WithFields(logrus.Fields{
		"enqueued":  s.Enqueued,
		"completed": s.Completed,
		"dropped":   s.Dropped,
		"avg_delay": s.AvgQueueDelay(),
		"avg_time":  s.AvgServiceTime(),
	}).Info("server stopped")
	return err
}
