// Client for submitting jobs to a serialq server
package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"serialq/src/client/netstats"
	"serialq/src/config"
	"serialq/src/model"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Client struct {
	addr   string
	config config.Client
	logger *logrus.Entry
	stats  *netstats.StatsCollector

	connection quic.Connection
}

// Outcome of Run.
type Summary struct {
	Sent, OK, Failed, Canceled, Lost int
	AvgDelay                         time.Duration
}

func NewClient(addr string, cfg config.Client, logger *logrus.Entry) *Client {
	return &Client{
		addr:   addr,
		config: cfg,
		logger: logger,
		stats:  netstats.New(32),
	}
}

// Connect the client
func (c *Client) Connect(ctx context.Context) (err error) {
	tlsConf := &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{model.Protocol},
	}
	quicConfig := &quic.Config{
		MaxIdleTimeout: 5 * time.Minute,
	}

	c.logger.WithField("addr", c.addr).Info("connecting")
	c.connection, err = quic.DialAddr(ctx, c.addr, tlsConf, quicConfig)
	if err != nil {
		return errors.Wrapf(err, "client: dial %s", c.addr)
	}
	c.logger.Info("connected")
	return nil
}

func (c *Client) Close() error {
	if c.connection == nil {
		return nil
	}
	return c.connection.CloseWithError(0, "bye")
}

// Request sends a job on its own stream and waits for the response.
func (c *Client) Request(ctx context.Context, job *model.JobRequest) (*model.JobResponse, error) {
	if c.connection == nil {
		return nil, errors.New("client: not connected")
	}
	stream, err := c.connection.OpenStreamSync(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "client: open stream")
	}
	return c.exchange(stream, job)
}

func (c *Client) exchange(stream io.ReadWriteCloser, job *model.JobRequest) (*model.JobResponse, error) {
	c.stats.RecordSend(job.ID)

	if err := job.Write(stream); err != nil {
		c.stats.Forget(job.ID)
		return nil, errors.Wrap(err, "client: write job")
	}
	// Closes the write direction only
	if err := stream.Close(); err != nil {
		c.stats.Forget(job.ID)
		return nil, errors.Wrap(err, "client: close stream")
	}

	res, err := model.ReadJobResponse(bufio.NewReader(stream))
	if err != nil {
		c.stats.Forget(job.ID)
		return nil, errors.Wrap(err, "client: read response")
	}
	c.stats.RecordRecv(job.ID, len(res.Payload))
	return res, nil
}

// Run submits the configured number of jobs, at most Concurrency at a time.
func (c *Client) Run(ctx context.Context) (Summary, error) {
	if err := c.Connect(ctx); err != nil {
		return Summary{}, err
	}
	defer c.Close()

	semaphore := NewSemaphore(c.config.Concurrency)
	var waitGroup sync.WaitGroup
	var mutex sync.Mutex
	summary := Summary{}

	for i := 0; i < c.config.Jobs; i++ {
		if err := semaphore.Acquire(ctx); err != nil {
			break
		}
		job := &model.JobRequest{
			ID:      uuid.New(),
			Name:    fmt.Sprintf("job-%d", i),
			Work:    int(c.config.Work.Milliseconds()),
			Payload: []byte(fmt.Sprintf("payload %d", i)),
		}

		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			defer semaphore.Release()

			res, err := c.Request(ctx, job)

			mutex.Lock()
			defer mutex.Unlock()
			summary.Sent++
			if err != nil {
				summary.Lost++
				c.logger.WithError(err).WithField("job", job.Name).Warn("request failed")
				return
			}
			switch res.Status {
			case model.STATUS_OK:
				summary.OK++
			case model.STATUS_CANCELED:
				summary.Canceled++
			default:
				summary.Failed++
			}
			c.logger.WithFields(logrus.Fields{
				"job":      job.Name,
				"status":   res.Status,
				"position": res.Position,
				"waited":   time.Duration(res.Waited) * time.Millisecond,
			}).Info("response received")
		}()
	}
	waitGroup.Wait()

	summary.AvgDelay = c.stats.AvgDelay()
	return summary, ctx.Err()
}
