// Package notify localizes notifications and hands them to a push transport.
package notify

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"nudger/internal/domain"
	"nudger/internal/feed"
	"nudger/internal/i18n"
)

// Category tags every message this service emits.
const Category = "NUDGER"

type Message struct {
	Title domain.Text
	Body  *domain.Text
}

type Notifier interface {
	Send(ctx context.Context, owner string, msg Message, data map[string]string) error
	// SendCollapsible lets the provider replace an earlier undelivered
	// message with the same collapse key.
	SendCollapsible(ctx context.Context, owner, collapseKey string, msg Message, data map[string]string) error
}

// Push is a rendered message addressed to one recipient topic.
type Push struct {
	Topic       string            `json:"topic"`
	CollapseKey string            `json:"collapseKey,omitempty"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data"`
}

type Transport interface {
	Deliver(ctx context.Context, p Push) error
}

// Dispatcher is the Notifier used in production. It looks up the
// recipient's language, renders through the catalog and applies the
// provider rate limit before delivery.
type Dispatcher struct {
	dir       feed.Directory
	catalog   *i18n.Catalog
	transport Transport
	limiter   *rate.Limiter
}

// NewDispatcher builds a Dispatcher. perSec <= 0 disables rate limiting.
func NewDispatcher(dir feed.Directory, catalog *i18n.Catalog, t Transport, perSec int) *Dispatcher {
	d := &Dispatcher{dir: dir, catalog: catalog, transport: t}
	if perSec > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
	}
	return d
}

func (d *Dispatcher) Send(ctx context.Context, owner string, msg Message, data map[string]string) error {
	return d.deliver(ctx, owner, "", msg, data)
}

func (d *Dispatcher) SendCollapsible(ctx context.Context, owner, collapseKey string, msg Message, data map[string]string) error {
	return d.deliver(ctx, owner, collapseKey, msg, data)
}

func (d *Dispatcher) deliver(ctx context.Context, owner, collapseKey string, msg Message, data map[string]string) error {
	lang, err := d.language(ctx, owner)
	if err != nil {
		return err
	}
	p := Push{
		Topic:       owner,
		CollapseKey: collapseKey,
		Title:       d.catalog.Render(lang, msg.Title),
		Data:        Envelope(data),
	}
	if msg.Body != nil {
		p.Body = d.catalog.Render(lang, *msg.Body)
	}
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	if err := d.transport.Deliver(ctx, p); err != nil {
		return fmt.Errorf("deliver to %s: %w", owner, err)
	}
	return nil
}

func (d *Dispatcher) language(ctx context.Context, uid string) (string, error) {
	u, err := d.dir.User(ctx, uid)
	if errors.Is(err, feed.ErrUserNotFound) {
		return i18n.DefaultLanguage, nil
	}
	if err != nil {
		return "", fmt.Errorf("load recipient %s: %w", uid, err)
	}
	if u.Language == "" {
		return i18n.DefaultLanguage, nil
	}
	return u.Language, nil
}

// Envelope copies data and fills the fields every message carries.
func Envelope(data map[string]string) map[string]string {
	out := make(map[string]string, len(data)+2)
	for k, v := range data {
		out[k] = v
	}
	if out["event"] == "" {
		out["event"] = domain.EventInfo
	}
	out["category"] = Category
	return out
}
