package command

import (
	"context"
	"serialq/src/client"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type Client struct {
	Logger *logrus.Logger
}

func (cmd Client) Command(ctx context.Context, opts *Options) *cobra.Command {
	var jobs, concurrency int

	c := &cobra.Command{
		Use:   "client",
		Short: "submit jobs to a server",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := opts.Load(cmd.Logger)
			if err != nil {
				return err
			}
			if c.Flags().Changed("jobs") {
				cfg.Client.Jobs = jobs
			}
			if c.Flags().Changed("concurrency") {
				cfg.Client.Concurrency = concurrency
			}

			logger := logrus.NewEntry(cmd.Logger).WithField("component", "client")
			summary, err := client.NewClient(cfg.Server.Addr(), cfg.Client, logger).Run(ctx)
			logger.WithFields(logrus.Fields{
				"sent":      summary.Sent,
				"ok":        summary.OK,
				"failed":    summary.Failed,
				"canceled":  summary.Canceled,
				"lost":      summary.Lost,
				"avg_delay": summary.AvgDelay,
			}).Info("client done")
			return err
		},
	}
	c.Flags().IntVarP(&jobs, "jobs", "n", 0, "number of jobs to submit")
	c.Flags().IntVar(&concurrency, "concurrency", 0, "jobs in flight at once")
	return c
}
