// Package events fans committed ledger events out to subscribers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vitwit/chaindonate/types"
)

// Publisher receives ledger events after the transaction that wrote them
// has committed. A publish failure never undoes the commit.
type Publisher interface {
	Publish(ctx context.Context, evs []types.LedgerEvent) error
	Close() error
}

type Noop struct{}

var (
	_ Publisher = Noop{}
	_ Publisher = (*NATSPublisher)(nil)
)

func (Noop) Publish(context.Context, []types.LedgerEvent) error { return nil }
func (Noop) Close() error                                      { return nil }

const DefaultSubjectPrefix = "chaindonate.ledger"

const (
	flushTimeout    = 2 * time.Second
	minFlushTimeout = 250 * time.Millisecond
)

// natsConn is the part of *nats.Conn the publisher uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Drain() error
}

// NATSPublisher publishes each event as JSON on
// "<prefix>.<campaignId>.<type>".
type NATSPublisher struct {
	conn   natsConn
	prefix string
}

func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("chaindonate"),
		nats.Timeout(5*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return newNATSPublisher(conn, prefix), nil
}

func newNATSPublisher(conn natsConn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{conn: conn, prefix: strings.TrimSuffix(prefix, ".")}
}

// Subject returns the subject an event is published on.
func (p *NATSPublisher) Subject(ev types.LedgerEvent) string {
	return p.prefix + "." + subjectToken(ev.CampaignID) + "." + string(ev.Type)
}

func (p *NATSPublisher) Publish(ctx context.Context, evs []types.LedgerEvent) error {
	for _, ev := range evs {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", ev.EventID, err)
		}
		if err := p.conn.Publish(p.Subject(ev), data); err != nil {
			return fmt.Errorf("publish event %s: %w", ev.EventID, err)
		}
	}

	return p.conn.FlushTimeout(flushWindow(ctx))
}

// flushWindow follows the caller's deadline but always leaves the flush a
// short window, even when the deadline has already passed.
func flushWindow(ctx context.Context) time.Duration {
	timeout := flushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	return max(timeout, minFlushTimeout)
}

func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// subjectToken keeps ids from introducing extra subject levels or wildcards.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}
