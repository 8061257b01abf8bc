package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radar-uptime/internal/models"
)

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
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

func testRecord() models.Record {
	start := time.Date(2019, 3, 14, 2, 0, 0, 123456000, time.UTC)
	return models.Record{
		StationID:        5,
		StartTime:        start,
		EndTime:          start.Add(2 * time.Hour),
		CommandName:      "normalscan",
		ControlProgramID: 151,
		IsValid:          true,
	}
}

func TestSerializeToMessage(t *testing.T) {
	msg, err := serializeToMessage(testRecord())
	require.NoError(t, err)

	assert.Equal(t, []byte("5:2019-03-14T02:00:00.123456"), msg.Key)
	assert.Contains(t, string(msg.Value), `"control_program_id":151`)
	assert.Contains(t, string(msg.Value), `"command_name":"normalscan"`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "station_id", msg.Headers[0].Key)
	assert.Equal(t, []byte("5"), msg.Headers[0].Value)
	assert.Equal(t, "is_valid", msg.Headers[1].Key)
	assert.Equal(t, []byte("true"), msg.Headers[1].Value)
}

func TestPublish(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}

	rec := testRecord()
	other := rec
	other.StationID = 33
	other.IsValid = false

	require.NoError(t, p.Publish(context.Background(), []models.Record{rec, other}))
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "33:2019-03-14T02:00:00.123456", string(w.msgs[1].Key))
	assert.Equal(t, []byte("false"), w.msgs[1].Headers[1].Value)

	require.NoError(t, p.Publish(context.Background(), nil))
	assert.Len(t, w.msgs, 2)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublish_WriterError(t *testing.T) {
	p := &KafkaPublisher{writer: &fakeWriter{err: errors.New("leader not available")}}
	err := p.Publish(context.Background(), []models.Record{testRecord()})
	assert.EqualError(t, err, "leader not available")
}

func TestNewKafkaPublisher(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "rawacf-records")
	w, ok := p.writer.(*kafkago.Writer)
	require.True(t, ok)
	assert.Equal(t, "rawacf-records", w.Topic)
	assert.Equal(t, kafkago.RequireAll, w.RequiredAcks)
}
