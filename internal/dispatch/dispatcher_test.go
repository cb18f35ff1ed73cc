package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/require"

	"github.com/Rajchodisetti/market-monitor/internal/signal"
)

func entryFixture(t *testing.T) (QueueMessage, []byte) {
	t.Helper()
	res := signal.Result{
		Ticker:     "AAPL",
		Triggered:  true,
		Reasons:    []string{"volume_spike", "rapid_movement"},
		Confidence: 0.78,
		Priority:   signal.PriorityHigh,
		Metrics: map[string]float64{
			"percent_change": 0.73,
			"volume_ratio":   3.86,
		},
		EvaluatedAt: time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC),
	}
	window := AnalysisWindow{
		Start: res.EvaluatedAt.Add(-30 * time.Minute),
		End:   res.EvaluatedAt,
	}
	msg := NewEntryMessage(res, window)
	payload, err := msg.Encode()
	require.NoError(t, err)
	return msg, payload
}

func TestPublish_FirstAttempt(t *testing.T) {
	client, mock := redismock.NewClientMock()
	pub := NewRedisPublisher(client, WithBaseDelay(time.Millisecond))

	msg, payload := entryFixture(t)
	mock.ExpectLPush(defaultQueueKey, payload).SetVal(1)

	require.NoError(t, pub.Publish(context.Background(), msg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublish_RetriesThenSucceeds(t *testing.T) {
	client, mock := redismock.NewClientMock()
	pub := NewRedisPublisher(client, WithBaseDelay(time.Millisecond))

	msg, payload := entryFixture(t)
	mock.ExpectLPush(defaultQueueKey, payload).SetErr(errors.New("connection reset"))
	mock.ExpectLPush(defaultQueueKey, payload).SetVal(1)

	require.NoError(t, pub.Publish(context.Background(), msg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublish_DropsAfterExhaustion(t *testing.T) {
	client, mock := redismock.NewClientMock()
	pub := NewRedisPublisher(client, WithBaseDelay(time.Millisecond), WithMaxAttempts(3))

	msg, payload := entryFixture(t)
	for i := 0; i < 3; i++ {
		mock.ExpectLPush(defaultQueueKey, payload).SetErr(errors.New("connection refused"))
	}

	err := pub.Publish(context.Background(), msg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "after 3 attempts")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublish_CustomQueueKey(t *testing.T) {
	client, mock := redismock.NewClientMock()
	pub := NewRedisPublisher(client, WithQueueKey("signals:staging"), WithBaseDelay(time.Millisecond))

	msg, payload := entryFixture(t)
	mock.ExpectLPush("signals:staging", payload).SetVal(1)

	require.NoError(t, pub.Publish(context.Background(), msg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEntryMessage_Envelope(t *testing.T) {
	msg, payload := entryFixture(t)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))

	require.Equal(t, KindEntry, decoded["kind"])
	require.Equal(t, []any{"AAPL"}, decoded["tickers"])
	require.Equal(t, []any{"volume_spike", "rapid_movement"}, decoded["signals"])
	require.InDelta(t, 0.78, decoded["confidence"], 1e-9)
	require.Equal(t, "high", decoded["priority"])
	require.Equal(t, SourceConfirmTier, decoded["source"])
	require.NotContains(t, decoded, "reason")
	require.NotContains(t, decoded, "validation_score")

	snapshot, ok := decoded["market_snapshot"].(map[string]any)
	require.True(t, ok)
	require.InDelta(t, 3.86, snapshot["volume_ratio"], 1e-9)

	window, ok := decoded["analysis_window"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, msg.AnalysisWindow.End.Format(time.RFC3339), window["end"])
}

func TestExitMessage_Envelope(t *testing.T) {
	now := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	window := AnalysisWindow{Start: now.Add(-time.Hour), End: now}
	msg := NewExitMessage("NVDA", 32.5, window, now)

	payload, err := msg.Encode()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))

	require.Equal(t, KindExit, decoded["kind"])
	require.Equal(t, []any{"NVDA"}, decoded["tickers"])
	require.Equal(t, ReasonInvalidated, decoded["reason"])
	require.InDelta(t, 32.5, decoded["validation_score"], 1e-9)
	require.Equal(t, SourceValidateTier, decoded["source"])
}
