package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/chaindonate/types"
)

type recordingConn struct {
	subjects []string
	payloads [][]byte
	fail     error
	flushed  int
	timeouts []time.Duration
	drained  bool
}

func (c *recordingConn) Publish(subject string, data []byte) error {
	if c.fail != nil {
		return c.fail
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func (c *recordingConn) FlushTimeout(d time.Duration) error {
	c.flushed++
	c.timeouts = append(c.timeouts, d)
	return nil
}

func (c *recordingConn) Drain() error { c.drained = true; return nil }

func TestNATSPublisherSubjects(t *testing.T) {
	conn := &recordingConn{}
	p := newNATSPublisher(conn, "")

	evs := []types.LedgerEvent{
		{EventID: "e1", CampaignID: "camp-1", Type: types.EventDonationConfirmed, Amount: decimal.RequireFromString("2500.5"), Currency: "INR"},
		{EventID: "e2", CampaignID: "camp.2", Type: types.EventMilestoneCompleted},
	}
	require.NoError(t, p.Publish(context.Background(), evs))

	assert.Equal(t, []string{
		"chaindonate.ledger.camp-1.DONATION_CONFIRMED",
		"chaindonate.ledger.camp_2.MILESTONE_COMPLETED",
	}, conn.subjects)
	assert.Equal(t, 1, conn.flushed)

	var decoded types.LedgerEvent
	require.NoError(t, json.Unmarshal(conn.payloads[0], &decoded))
	assert.Equal(t, "e1", decoded.EventID)
	assert.True(t, decoded.Amount.Equal(decimal.RequireFromString("2500.5")))

	require.NoError(t, p.Close())
	assert.True(t, conn.drained)
}

func TestNATSPublisherFlushesAfterDeadline(t *testing.T) {
	conn := &recordingConn{}
	p := newNATSPublisher(conn, "")
	evs := []types.LedgerEvent{{EventID: "e1", CampaignID: "c", Type: types.EventDonationConfirmed}}

	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	require.NoError(t, p.Publish(expired, evs))

	require.NoError(t, p.Publish(context.Background(), evs))

	long, cancelLong := context.WithTimeout(context.Background(), time.Minute)
	defer cancelLong()
	require.NoError(t, p.Publish(long, evs))

	require.Len(t, conn.timeouts, 3)
	assert.Equal(t, minFlushTimeout, conn.timeouts[0])
	assert.Equal(t, flushTimeout, conn.timeouts[1])
	assert.Equal(t, flushTimeout, conn.timeouts[2])
}

func TestNATSPublisherReportsFailures(t *testing.T) {
	conn := &recordingConn{fail: errors.New("nats: connection closed")}
	p := newNATSPublisher(conn, "donations.")

	err := p.Publish(context.Background(), []types.LedgerEvent{{EventID: "e1", CampaignID: "c", Type: types.EventIntentExpired}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "e1")
	assert.Equal(t, "donations.c.INTENT_EXPIRED", p.Subject(types.LedgerEvent{CampaignID: "c", Type: types.EventIntentExpired}))
}

func TestNoop(t *testing.T) {
	assert.NoError(t, Noop{}.Publish(context.Background(), nil))
	assert.NoError(t, Noop{}.Close())
}
