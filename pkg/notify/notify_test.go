package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSink struct {
	reports []Payload
	alerts  []string
	err     error
}

func (r *recordingSink) SendReport(_ context.Context, p Payload) error {
	r.reports = append(r.reports, p)
	return r.err
}

func (r *recordingSink) SendAlert(_ context.Context, title, _ string) error {
	r.alerts = append(r.alerts, title)
	return r.err
}

func TestLogSink(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.SendReport(context.Background(), Payload{"records_archived": 42, "job_type": "daily"}))
	require.NoError(t, sink.SendAlert(context.Background(), "Cleanup Failed", "boom"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "cleanup report", entries[0].Message)
	assert.Equal(t, int64(42), entries[0].ContextMap()["records_archived"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "Cleanup Failed", entries[1].ContextMap()["title"])
}

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	failing := &recordingSink{err: errors.New("unreachable")}
	ok := &recordingSink{}
	m := Multi{failing, ok}

	err := m.SendAlert(context.Background(), "Disk Space Emergency", "92%")
	assert.Error(t, err)
	assert.Equal(t, []string{"Disk Space Emergency"}, ok.alerts)

	err = m.SendReport(context.Background(), Payload{"a": 1})
	assert.Error(t, err)
	assert.Len(t, ok.reports, 1)
}

func TestMulti_Empty(t *testing.T) {
	assert.NoError(t, Multi{}.SendAlert(context.Background(), "t", "d"))
}

func TestThrottled_LimitsPerTitle(t *testing.T) {
	next := &recordingSink{}
	th := NewThrottled(next, time.Hour, 2, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, th.SendAlert(ctx, "High CPU", "95%"))
	}
	require.NoError(t, th.SendAlert(ctx, "High Memory", "91%"))

	assert.Equal(t, []string{"High CPU", "High CPU", "High Memory"}, next.alerts)
}

func TestThrottled_ReportsPassThrough(t *testing.T) {
	next := &recordingSink{}
	th := NewThrottled(next, time.Hour, 1, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, th.SendReport(context.Background(), Payload{"i": i}))
	}
	assert.Len(t, next.reports, 3)
}
