package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobWrapsPayload(t *testing.T) {
	payload := map[string]string{"reference": "abc"}

	job, raw, err := newJob(JobTypeSubmitPayment, payload)
	require.NoError(t, err)

	assert.Len(t, job.ID, 36)
	assert.Equal(t, JobTypeSubmitPayment, job.Type)

	var decoded Job
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, job.ID, decoded.ID)
	assert.Empty(t, decoded.raw)

	var got map[string]string
	require.NoError(t, decoded.Decode(&got))
	assert.Equal(t, payload, got)
}

func TestNewJobRejectsUnmarshalablePayload(t *testing.T) {
	_, _, err := newJob(JobTypeSubmitPayment, make(chan int))
	assert.Error(t, err)
}

func TestDecodeBadPayload(t *testing.T) {
	job := &Job{ID: "1", Payload: json.RawMessage(`"text"`)}
	var v struct{ A int }
	assert.Error(t, job.Decode(&v))
}

func TestRetryDelay(t *testing.T) {
	want := []time.Duration{15 * time.Second, 30 * time.Second, time.Minute, 2 * time.Minute, 4 * time.Minute}
	for i, d := range want {
		assert.Equal(t, d, retryDelay(i+1))
	}
}

func TestIsLastAttempt(t *testing.T) {
	assert.False(t, (&Job{RetryCount: MaxRetries - 1}).IsLastAttempt())
	assert.True(t, (&Job{RetryCount: MaxRetries}).IsLastAttempt())
}
