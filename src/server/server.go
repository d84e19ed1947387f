package server

import (
	"context"
	"serialq/src/config"
	"serialq/src/queue"
	"serialq/src/server/stream_handler"

	"github.com/quic-go/quic-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Server accepts QUIC connections and runs the jobs they send, one at a time.
type Server struct {
	config  config.Server
	queue   *queue.SerialQueue
	handler stream_handler.Handler
	logger  *logrus.Entry
}

func NewServer(cfg config.Server, q *queue.SerialQueue, handler stream_handler.Handler, logger *logrus.Entry) *Server {
	return &Server{
		config:  cfg,
		queue:   q,
		handler: handler,
		logger:  logger,
	}
}

// Start listens until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	url := s.config.Addr()
	quicConfig := &quic.Config{
		MaxIdleTimeout:        s.config.IdleTimeout,
		HandshakeIdleTimeout:  s.config.HandshakeTimeout,
		MaxIncomingStreams:    s.config.MaxIncomingStreams,
		MaxIncomingUniStreams: -1,
	}
	tlsConfig, err := generateTLSConfig()
	if err != nil {
		return err
	}

	listener, err := quic.ListenAddr(url, tlsConfig, quicConfig)
	if err != nil {
		return errors.Wrapf(err, "server: listen on %s", url)
	}
	defer listener.Close()

	s.logger.WithField("addr", listener.Addr()).Info("server listening")

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		connection, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "server: accept")
		}
		s.onConnectionAccepted(ctx, connection)
	}
}

func (s *Server) onConnectionAccepted(ctx context.Context, connection quic.Connection) {
	logger := s.logger.WithField("remote", connection.RemoteAddr())
	logger.Info("connection accepted")

	streamHandler := stream_handler.NewStreamHandler(connection.Context(), s.queue, s.handler, logger)

	// accept streams in background
	go func() {
		defer streamHandler.Stop()
		for {
			stream, err := connection.AcceptStream(ctx)
			if err != nil {
				logger.WithError(err).Info("connection closed")
				return
			}
			go streamHandler.HandleStream(stream)
		}
	}()
}
