package events

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingPublisher struct {
	got []Event
	err error
}

func (r *recordingPublisher) Publish(_ context.Context, ev Event) error {
	r.got = append(r.got, ev)
	return r.err
}

func TestEmit(t *testing.T) {
	t.Run("stamps occurrence time", func(t *testing.T) {
		p := &recordingPublisher{}
		Emit(context.Background(), p, zap.NewNop(), Event{Type: TypeBookingCreated, EntityID: uuid.New()})
		require.Len(t, p.got, 1)
		assert.False(t, p.got[0].OccurredAt.IsZero())
	})

	t.Run("logs and swallows publish errors", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		p := &recordingPublisher{err: errors.New("broker down")}
		Emit(context.Background(), p, zap.New(core), Event{Type: TypeStatusChanged, Kind: "booking"})
		assert.Equal(t, 1, logs.FilterMessage("event publish failed").Len())
	})

	t.Run("nil publisher is a no-op", func(t *testing.T) {
		assert.NotPanics(t, func() {
			Emit(context.Background(), nil, zap.NewNop(), Event{Type: TypeBookingCreated})
		})
	})
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "therapy_plan.status_changed", RoutingKey(Event{Type: TypeStatusChanged, Kind: "therapy_plan"}))
	assert.Equal(t, "analysis_order.entity.created", RoutingKey(Event{Type: TypeEntityCreated, Kind: "analysis_order"}))
	assert.Equal(t, TypeBookingCreated, RoutingKey(Event{Type: TypeBookingCreated, Kind: "booking"}))
}
