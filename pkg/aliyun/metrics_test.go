package aliyun

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraser-isbester/aliyun-db-exporter/pkg/config"
)

func TestNewWindow(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 17, 42, 0, time.FixedZone("CST", 8*3600))

	tests := []struct {
		name      string
		width     time.Duration
		lag       time.Duration
		wantStart string
		wantEnd   string
	}{
		{name: "mongodb defaults", width: 5 * time.Minute, lag: 5 * time.Minute, wantStart: "2024-03-01T02:07Z", wantEnd: "2024-03-01T02:12Z"},
		{name: "sub-minute width", width: 30 * time.Second, lag: 0, wantStart: "2024-03-01T02:16Z", wantEnd: "2024-03-01T02:17Z"},
		{name: "zero width", width: 0, lag: time.Minute, wantStart: "2024-03-01T02:15Z", wantEnd: "2024-03-01T02:16Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWindow(now, tt.width, tt.lag)
			assert.Equal(t, tt.wantStart, w.StartString())
			assert.Equal(t, tt.wantEnd, w.EndString())
			assert.True(t, w.Start.Before(w.End))
			assert.Equal(t, time.UTC, w.End.Location())
		})
	}
}

func TestWindowFor(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 17, 0, 0, time.UTC)
	w := WindowFor(now, config.DefaultEngines()[config.EngineMongoDB])
	assert.Equal(t, "2024-03-01T10:07Z", w.StartString())
	assert.Equal(t, "2024-03-01T10:12Z", w.EndString())
}

type stubAPI struct {
	resp Response
	err  error
}

func (s *stubAPI) ListInstances(context.Context) (Response, error) { return s.resp, s.err }
func (s *stubAPI) ListClusters(context.Context) (Response, error)  { return s.resp, s.err }
func (s *stubAPI) GetPerformance(context.Context, config.Engine, string, string, Window) (Response, error) {
	return s.resp, s.err
}

func TestFetch(t *testing.T) {
	window := NewWindow(time.Now(), time.Minute, 0)

	resp, err := Fetch(context.Background(), &stubAPI{resp: Response{"ok": true}}, config.EngineMongoDB, "dds-1", "CpuUsage", window)
	require.NoError(t, err)
	assert.Equal(t, Response{"ok": true}, resp)

	cause := errors.New("connection reset")
	_, err = Fetch(context.Background(), &stubAPI{err: cause}, config.EngineMongoDB, "dds-1", "CpuUsage", window)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, cause)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "dds-1", fetchErr.NodeID)
	assert.Equal(t, "CpuUsage", fetchErr.Key)
}
