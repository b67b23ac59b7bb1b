package events

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, Event) error { return errors.New("broker down") }

func TestNewEncodesPayload(t *testing.T) {
	flowID := uuid.New()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))

	event, err := New(SessionCommitted, flowID, at, SessionCommittedPayload{SessionID: "w-1", DurationSeconds: 90})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, flowID, event.FlowID)
	assert.Equal(t, time.UTC, event.Timestamp.Location())

	var payload SessionCommittedPayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, 90, payload.DurationSeconds)
}

func TestEmitSwallowsFailures(t *testing.T) {
	rec := &Recorder{}
	pub := Fanout{failingPublisher{}, rec}

	assert.NotPanics(t, func() {
		Emit(context.Background(), pub, CodeResent, uuid.New(), time.Now(), CodeResentPayload{Identity: "a@b.co"})
		Emit(context.Background(), nil, CodeResent, uuid.New(), time.Now(), nil)
	})
	assert.Len(t, rec.OfType(CodeResent), 1)
	assert.Empty(t, rec.OfType(SessionCommitted))
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "coach.events.SessionCommitted", DefaultJetStreamConfig().Subject(SessionCommitted))
}

func TestJetStreamPublisher(t *testing.T) {
	url := os.Getenv("IRONCLAD_TEST_NATS_URL")
	if url == "" {
		t.Skip("IRONCLAD_TEST_NATS_URL not set")
	}
	ctx := context.Background()

	cfg := DefaultJetStreamConfig()
	cfg.URL = url
	cfg.StreamName = "COACH_EVENTS_TEST"
	cfg.SubjectPrefix = "coach.test." + uuid.NewString()[:8]

	pub, err := NewJetStreamPublisher(ctx, cfg)
	require.NoError(t, err)
	defer pub.Close()

	nc, err := nats.Connect(url)
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync(cfg.Subject(VerificationSucceeded))
	require.NoError(t, err)

	event, err := New(VerificationSucceeded, uuid.New(), time.Now(), VerificationSucceededPayload{Identity: "a@b.co"})
	require.NoError(t, err)
	require.NoError(t, pub.Publish(ctx, event))

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, event.ID.String(), msg.Header.Get("Event-ID"))
}
