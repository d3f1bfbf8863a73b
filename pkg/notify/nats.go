package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSSink publishes reports to <prefix>.report and alerts to <prefix>.alert
type NATSSink struct {
	nc           *nats.Conn
	prefix       string
	flushTimeout time.Duration
	logger       *zap.Logger
}

// DefaultFlushTimeout bounds a publish when the caller's ctx has no deadline
const DefaultFlushTimeout = 5 * time.Second

type alertMessage struct {
	Title     string    `json:"title"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// NewNATSSink connects to NATS with retry
func NewNATSSink(url, prefix string, logger *zap.Logger) (*NATSSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("notify")
	if prefix == "" {
		prefix = "cleanupd"
	}

	nc, err := nats.Connect(url,
		nats.Name("cleanupd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("connected to NATS", zap.String("url", url), zap.String("prefix", prefix))
	return &NATSSink{nc: nc, prefix: prefix, flushTimeout: DefaultFlushTimeout, logger: logger}, nil
}

// SendReport publishes the payload as JSON
func (s *NATSSink) SendReport(ctx context.Context, payload Payload) error {
	return s.publish(ctx, s.prefix+".report", payload)
}

// SendAlert publishes the alert as JSON
func (s *NATSSink) SendAlert(ctx context.Context, title, detail string) error {
	return s.publish(ctx, s.prefix+".alert", alertMessage{
		Title:     title,
		Detail:    detail,
		Timestamp: time.Now(),
	})
}

func (s *NATSSink) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := s.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	// FlushWithContext rejects contexts without a deadline
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.flushTimeout)
		defer cancel()
	}
	if err := s.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush %s: %w", subject, err)
	}

	s.logger.Debug("message published", zap.String("subject", subject), zap.Int("size", len(data)))
	return nil
}

// Close drains pending messages and closes the connection
func (s *NATSSink) Close() error {
	return s.nc.Drain()
}
