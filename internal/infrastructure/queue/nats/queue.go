package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/plan-takeoff/internal/infrastructure/resilience"
)

const (
	DefaultSubject = "maps.uploaded"
	workerGroup    = "workers"
)

type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

// mapUploadedEvent is the wire payload of a map uploaded notification.
type mapUploadedEvent struct {
	MapID       string    `json:"mapId"`
	PublishedAt time.Time `json:"publishedAt"`
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(subject) == "" {
		subject = DefaultSubject
	}

	conn, err := nats.Connect(
		url,
		nats.Name("plan-takeoff"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishMapUploaded(ctx context.Context, mapID string) error {
	payload, err := encodeMapUploaded(mapID, time.Now().UTC())
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeMapUploaded blocks until ctx is done, handing each map id to
// handler. Messages are shared across the worker queue group.
func (q *Queue) SubscribeMapUploaded(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		event, err := decodeMapUploaded(msg.Data)
		if err != nil {
			q.logger.Error("map_uploaded_decode_failed", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if !event.PublishedAt.IsZero() {
			handlerCtx = context.WithValue(handlerCtx, publishedAtKey{}, event.PublishedAt)
		}
		if err := handler(handlerCtx, event.MapID); err != nil {
			q.logger.Error("map_uploaded_handler_failed", "map_id", event.MapID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeMapUploaded(mapID string, at time.Time) ([]byte, error) {
	mapID = strings.TrimSpace(mapID)
	if mapID == "" {
		return nil, fmt.Errorf("encode map uploaded event: map id is empty")
	}
	return json.Marshal(mapUploadedEvent{MapID: mapID, PublishedAt: at})
}

// decodeMapUploaded also accepts a bare map id as payload; PublishedAt is
// zero then.
func decodeMapUploaded(data []byte) (mapUploadedEvent, error) {
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return mapUploadedEvent{}, fmt.Errorf("decode map uploaded event: empty payload")
	}
	if !strings.HasPrefix(raw, "{") {
		return mapUploadedEvent{MapID: raw}, nil
	}
	var event mapUploadedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return mapUploadedEvent{}, fmt.Errorf("decode map uploaded event: %w", err)
	}
	if strings.TrimSpace(event.MapID) == "" {
		return mapUploadedEvent{}, fmt.Errorf("decode map uploaded event: map id is empty")
	}
	return event, nil
}

type publishedAtKey struct{}

// PublishedAt returns when the event being handled was published, if the
// payload carried it.
func PublishedAt(ctx context.Context) (time.Time, bool) {
	at, ok := ctx.Value(publishedAtKey{}).(time.Time)
	return at, ok
}
