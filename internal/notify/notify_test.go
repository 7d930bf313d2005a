package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/libseat/internal/reservation"
)

var at = time.Date(2026, 10, 16, 8, 0, 0, 0, time.FixedZone("CST", 8*3600))

func TestLogger_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	n := Logger(zap.New(core))

	n.Notify(reservation.Event{RunID: "r1", Level: reservation.LevelInfo, Message: "login succeeded"})
	n.Notify(reservation.Event{RunID: "r1", Level: reservation.LevelDebug, Message: "body", SlotID: 5, Attempt: 1})
	n.Notify(reservation.Event{RunID: "r1", Level: reservation.LevelWarning, Message: "login: authentication",
		Kind: reservation.KindAuthentication, State: reservation.StateFatal})

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	assert.EqualValues(t, 5, entries[1].ContextMap()["slot_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "authentication", entries[2].ContextMap()["kind"])
	assert.Equal(t, "fatal", entries[2].ContextMap()["state"])
}

func TestWriter_FiltersAndFormats(t *testing.T) {
	var buf bytes.Buffer
	n := Writer(&buf, reservation.LevelInfo)
	n.Notify(reservation.Event{Time: at, Level: reservation.LevelDebug, Message: "hidden"})
	n.Notify(reservation.Event{Time: at, Level: reservation.LevelInfo, Message: "new slot id: 2684"})
	assert.Equal(t, "2026-10-16 08:00:00 - INFO - new slot id: 2684\n", buf.String())
}

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func TestPublisher_OnlyTerminalEvents(t *testing.T) {
	ch := &fakeChannel{}
	p := &Publisher{ch: ch, queue: DefaultQueue, log: zap.NewNop()}
	n := p.Outcomes(42)

	n.Notify(reservation.Event{RunID: "r1", Time: at, State: reservation.StateSubmitting, Message: "x"})
	n.Notify(reservation.Event{RunID: "r1", Time: at, State: reservation.StateSuccess, SlotID: 2684, Attempt: 3,
		Message: "reservation succeeded, slot 2684"})

	require.Len(t, ch.published, 1)
	assert.Equal(t, DefaultQueue, ch.keys[0])
	msg := ch.published[0]
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "r1", msg.MessageId)

	var m Message
	require.NoError(t, json.Unmarshal(msg.Body, &m))
	assert.Equal(t, int64(42), m.JobID)
	assert.Equal(t, "success", m.State)
	assert.Equal(t, 2684, m.SlotID)
	assert.Empty(t, m.Kind)
}

func TestPublisher_FailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	p := &Publisher{ch: &fakeChannel{err: errors.New("closed")}, queue: DefaultQueue, log: zap.New(core)}

	p.Outcomes(0).Notify(reservation.Event{RunID: "r2", Time: at, State: reservation.StateFatal,
		Kind: reservation.KindExhausted, Message: "gave up"})
	assert.Equal(t, 1, logs.FilterMessage("publish outcome failed").Len())
}

func TestNewMessage_FatalCarriesKind(t *testing.T) {
	m := NewMessage(7, reservation.Event{RunID: "r", Time: at, State: reservation.StateFatal, Kind: reservation.KindTransport})
	assert.Equal(t, "transport", m.Kind)
	assert.Equal(t, time.UTC, m.At.Location())
}
