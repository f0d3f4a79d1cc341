package queue

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamName(t *testing.T) {
	assert.Equal(t, "keywordintel-stream:acme", StreamName("acme"))
}

func TestParseMessage_RequiredFieldsOnly(t *testing.T) {
	raw := redis.XMessage{
		ID: "1-0",
		Values: map[string]any{
			"run_id": "run-1",
			"term":   "running shoes",
		},
	}

	msg, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "run-1", msg.RunID)
	assert.Equal(t, "running shoes", msg.Term)
	assert.Equal(t, 1, msg.Attempt, "attempt defaults to 1 when absent")
	assert.False(t, msg.WithReport)
	assert.Empty(t, msg.Providers)
	assert.Empty(t, msg.TraceID)
}

func TestParseMessage_AllFields(t *testing.T) {
	raw := redis.XMessage{
		ID: "2-0",
		Values: map[string]any{
			"run_id":      "run-2",
			"term":        "best running shoes",
			"providers":   "google_suggest,bing_suggest",
			"with_report": "1",
			"attempt":     "3",
			"trace_id":    "trace-xyz",
		},
	}

	msg, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"google_suggest", "bing_suggest"}, msg.Providers)
	assert.True(t, msg.WithReport)
	assert.Equal(t, 3, msg.Attempt)
	assert.Equal(t, "trace-xyz", msg.TraceID)
}

func TestParseMessage_MissingRunIDFails(t *testing.T) {
	raw := redis.XMessage{ID: "3-0", Values: map[string]any{"term": "shoes"}}
	_, err := ParseMessage(raw)
	assert.Error(t, err)
}

func TestParseMessage_MissingTermFails(t *testing.T) {
	raw := redis.XMessage{ID: "4-0", Values: map[string]any{"run_id": "run-4"}}
	_, err := ParseMessage(raw)
	assert.Error(t, err)
}

func TestParseMessage_MalformedAttemptFails(t *testing.T) {
	raw := redis.XMessage{
		ID: "5-0",
		Values: map[string]any{
			"run_id":  "run-5",
			"term":    "shoes",
			"attempt": "not-a-number",
		},
	}
	_, err := ParseMessage(raw)
	assert.Error(t, err)
}

func TestMessageValues_RoundTripsThroughParseMessage(t *testing.T) {
	original := Message{
		RunID:      "run-6",
		Term:       "waterproof boots",
		Providers:  []string{"reddit", "youtube"},
		WithReport: true,
		TraceID:    "trace-abc",
	}

	values := messageValues(original, 2)
	reparsed, err := ParseMessage(redis.XMessage{ID: "6-0", Values: values})
	require.NoError(t, err)

	assert.Equal(t, original.RunID, reparsed.RunID)
	assert.Equal(t, original.Term, reparsed.Term)
	assert.Equal(t, original.Providers, reparsed.Providers)
	assert.Equal(t, original.WithReport, reparsed.WithReport)
	assert.Equal(t, original.TraceID, reparsed.TraceID)
	assert.Equal(t, 2, reparsed.Attempt)
}
