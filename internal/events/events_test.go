package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shipnest/apiserver/internal/mq"
	"github.com/shipnest/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeBackend struct {
	mu         sync.Mutex
	channel    string
	data       [][]byte
	attrs      []map[string]string
	publishErr error
	ctxErr     error
	block      chan struct{}
}

func (f *fakeBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErr = ctx.Err()
	if f.publishErr != nil {
		return "", f.publishErr
	}
	f.channel = channel
	f.data = append(f.data, data)
	f.attrs = append(f.attrs, attrs)
	return "m1", nil
}

func (f *fakeBackend) Subscribe(ctx context.Context, _ string, handler mq.Handler) error {
	for i, data := range f.data {
		if err := handler(ctx, mq.Message{ID: "m" + string(rune('0'+i)), Data: data}); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeBackend) Close() error { return nil }

func TestBrokerPublisherPublishes(t *testing.T) {
	backend := &fakeBackend{}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := NewBrokerPublisher(mq.New(backend), "account-events", zap.NewNop())
	p.now = func() time.Time { return fixed }

	p.Publish(context.Background(), types.Event{Type: types.EventUserRegistered, UserID: "u1"})
	require.NoError(t, p.Close(context.Background()))

	require.Len(t, backend.data, 1)
	assert.Equal(t, "account-events", backend.channel)
	assert.Equal(t, map[string]string{"type": "user.registered", "ordering_key": "u1"}, backend.attrs[0])

	var got types.Event
	require.NoError(t, json.Unmarshal(backend.data[0], &got))
	assert.Equal(t, types.EventUserRegistered, got.Type)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, fixed.Equal(got.OccurredAt))
}

func TestBrokerPublisherSurvivesCancelledRequest(t *testing.T) {
	backend := &fakeBackend{}
	p := NewBrokerPublisher(mq.New(backend), "account-events", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Publish(ctx, types.Event{Type: types.EventAddressDeleted, UserID: "u1", AddressID: "a1"})
	require.NoError(t, p.Close(context.Background()))

	assert.NoError(t, backend.ctxErr)
	assert.Len(t, backend.data, 1)
}

func TestBrokerPublisherLogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	backend := &fakeBackend{publishErr: errors.New("broker down")}
	p := NewBrokerPublisher(mq.New(backend), "account-events", zap.New(core))

	p.Publish(context.Background(), types.Event{Type: types.EventAddressCreated, UserID: "u1"})
	require.NoError(t, p.Close(context.Background()))

	entries := logs.FilterMessage("publish event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "broker down", entries[0].ContextMap()["error"])
}

func TestBrokerPublisherDoesNotWaitForBroker(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	backend := &fakeBackend{block: make(chan struct{})}
	p := newBrokerPublisher(mq.New(backend), "account-events", zap.New(core), 1)

	returned := make(chan struct{})
	go func() {
		// One event is held by the stalled worker, one fills the buffer and
		// the rest are dropped.
		for i := 0; i < 5; i++ {
			p.Publish(context.Background(), types.Event{Type: types.EventUserProfileUpdated, UserID: "u1"})
		}
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a stalled broker")
	}

	close(backend.block)
	require.NoError(t, p.Close(context.Background()))

	backend.mu.Lock()
	sent := len(backend.data)
	backend.mu.Unlock()
	dropped := logs.FilterMessage("event dropped, buffer full").Len()
	assert.GreaterOrEqual(t, sent, 1)
	assert.Equal(t, 5, sent+dropped)
}

func TestBrokerPublisherCloseTimesOut(t *testing.T) {
	backend := &fakeBackend{block: make(chan struct{})}
	defer close(backend.block)
	p := NewBrokerPublisher(mq.New(backend), "account-events", zap.NewNop())

	p.Publish(context.Background(), types.Event{Type: types.EventUserRegistered, UserID: "u1"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Close(ctx), context.DeadlineExceeded)

	// Events after Close are dropped instead of panicking on the closed buffer.
	p.Publish(context.Background(), types.Event{Type: types.EventUserRegistered, UserID: "u1"})
}

func TestTailLogsEvents(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	backend := &fakeBackend{data: [][]byte{
		[]byte(`{"type":"address.created","userId":"u1","addressId":"a1"}`),
		[]byte(`not json`),
	}}

	err := Tail(context.Background(), mq.New(backend), "account-events", zap.New(core))
	require.NoError(t, err)

	assert.Equal(t, 1, logs.FilterMessage("event").Len())
	assert.Equal(t, 1, logs.FilterMessage("undecodable event").Len())
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	p.Publish(context.Background(), types.Event{Type: types.EventUserRegistered})
}
