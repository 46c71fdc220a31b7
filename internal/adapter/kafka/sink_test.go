package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	skafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

// fakeWriter is a test writer that records messages written.
type fakeWriter struct {
	msgs   []skafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...skafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestSend(t *testing.T) {
	fw := &fakeWriter{}
	s := NewSinkWithWriter(fw)
	record := domain.PermanentRecord{
		Number:    "100",
		TenantID:  5,
		DraftID:   "TEMP-A",
		Fields:    domain.ShipmentFields{TruckNumber: "KA01"},
		CreatedBy: 2,
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}

	require.NoError(t, s.Send(context.Background(), record))
	require.Len(t, fw.msgs, 1)

	msg := fw.msgs[0]
	assert.Equal(t, "5/100", string(msg.Key))
	assert.True(t, msg.Time.Equal(record.CreatedAt))

	var got domain.PermanentRecord
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "KA01", got.Fields.TruckNumber)
	assert.Equal(t, "TEMP-A", got.DraftID)

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "record.converted", headers["type"])
	assert.Equal(t, "TEMP-A", headers["draft_id"])
}

func TestSend_WriteError(t *testing.T) {
	s := NewSinkWithWriter(&fakeWriter{err: errors.New("broker down")})

	err := s.Send(context.Background(), domain.PermanentRecord{Number: "100"})
	assert.ErrorContains(t, err, "broker down")
}

func TestClose(t *testing.T) {
	fw := &fakeWriter{}
	require.NoError(t, NewSinkWithWriter(fw).Close())
	assert.True(t, fw.closed)
}
