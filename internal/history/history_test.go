package history

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkFunc func(ctx context.Context, o Order) error

func (f sinkFunc) Save(ctx context.Context, o Order) error { return f(ctx, o) }

func TestFanoutCallsEverySinkDespiteFailures(t *testing.T) {
	var got []string
	f := NewFanout().
		Add("broken", sinkFunc(func(context.Context, Order) error {
			got = append(got, "broken")
			return errors.New("boom")
		})).
		Add("nil", nil).
		Add("ok", sinkFunc(func(_ context.Context, o Order) error {
			got = append(got, "ok:"+o.OrderNo)
			return nil
		}))

	require.Equal(t, 2, f.Len())
	f.Record(context.Background(), Order{OrderNo: "ORD1"})
	assert.Equal(t, []string{"broken", "ok:ORD1"}, got)
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublisherSave(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{w: w, timeout: time.Second}
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	err := p.Save(context.Background(), Order{UserID: 7, OrderNo: "ORD123", PackageCode: "PKG1", CreatedAt: created})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "ORD123", string(msg.Key))
	assert.Equal(t, created, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, EventOrderPlaced, string(msg.Headers[0].Value))

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, EventOrderPlaced, body["type"])
	assert.Equal(t, "ORD123", body["order_no"])
	assert.Equal(t, "PKG1", body["package_code"])
	assert.EqualValues(t, 7, body["user_id"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublisherSaveWrapsWriterError(t *testing.T) {
	p := &Publisher{w: &fakeWriter{err: kafka.LeaderNotAvailable}, timeout: time.Second}
	err := p.Save(context.Background(), Order{OrderNo: "X"})
	require.Error(t, err)
	assert.ErrorIs(t, err, kafka.LeaderNotAvailable)
}

func TestNewPublisherDisabledWithoutBrokers(t *testing.T) {
	assert.Nil(t, NewPublisher(PublisherOptions{}))

	var p *Publisher
	assert.NoError(t, p.Close())

	p = NewPublisher(PublisherOptions{Brokers: []string{"localhost:9092"}})
	require.NotNil(t, p)
	kw, ok := p.w.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, DefaultTopic, kw.Topic)
}

func TestMigrationsEmbedded(t *testing.T) {
	m := Migrations()
	names, err := fs.Glob(m.FS, m.Dir+"/*.sql")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"migrations/0001_orders.down.sql",
		"migrations/0001_orders.up.sql",
	}, names)
}
