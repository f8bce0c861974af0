package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var ErrNoTransport = errors.New("unknown notify transport")

type TransportConfig struct {
	Kind        string
	NATSURL     string
	NATSSubject string
	RedisAddr   string
	RedisStream string
	WebhookURL  string
	WebhookAuth string
}

// OpenTransport connects the configured transport. The returned close func
// is always non-nil.
func OpenTransport(cfg TransportConfig) (Transport, func(), error) {
	switch strings.ToLower(cfg.Kind) {
	case "", "log":
		return LogTransport{}, func() {}, nil
	case "nats":
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return nil, func() {}, fmt.Errorf("connect nats: %w", err)
		}
		return NewNATSTransport(nc, cfg.NATSSubject), nc.Close, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return NewRedisTransport(rdb, cfg.RedisStream), func() { _ = rdb.Close() }, nil
	case "webhook":
		var headers map[string]string
		if cfg.WebhookAuth != "" {
			headers = map[string]string{"Authorization": cfg.WebhookAuth}
		}
		return NewWebhookTransport(cfg.WebhookURL, headers, 0), func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("%w: %q", ErrNoTransport, cfg.Kind)
	}
}

// LogTransport writes pushes to the log instead of a provider.
type LogTransport struct{}

func (LogTransport) Deliver(_ context.Context, p Push) error {
	log.Info().
		Str("topic", p.Topic).
		Str("collapse_key", p.CollapseKey).
		Str("title", p.Title).
		Str("body", p.Body).
		Str("event", p.Data["event"]).
		Msg("push")
	return nil
}

// NATSTransport publishes each push as JSON on a fixed subject for the
// gateway that talks to the push provider.
type NATSTransport struct {
	nc      *nats.Conn
	subject string
}

func NewNATSTransport(nc *nats.Conn, subject string) *NATSTransport {
	if subject == "" {
		subject = "nudger.push"
	}
	return &NATSTransport{nc: nc, subject: subject}
}

func (t *NATSTransport) Deliver(_ context.Context, p Push) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return t.nc.Publish(t.subject, b)
}

// RedisTransport appends pushes to a Redis stream.
type RedisTransport struct {
	rdb    redis.UniversalClient
	stream string
}

func NewRedisTransport(rdb redis.UniversalClient, stream string) *RedisTransport {
	if stream == "" {
		stream = "nudger:push"
	}
	return &RedisTransport{rdb: rdb, stream: stream}
}

func (t *RedisTransport) Deliver(ctx context.Context, p Push) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return t.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: t.stream,
		Values: map[string]interface{}{"topic": p.Topic, "push": b},
	}).Err()
}
