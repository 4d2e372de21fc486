package aliyun

import (
	"context"
	"time"

	"github.com/fraser-isbester/aliyun-db-exporter/pkg/config"
)

// windowLayout is the UTC minute-granularity timestamp format of the performance APIs
const windowLayout = "2006-01-02T15:04Z"

// Window is the [Start, End) range of a performance query
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow computes the query window ending lag before now. Both bounds are
// truncated to the minute and the window is at least one minute wide, so the
// provider is never asked for a range it has not finalized or an empty range.
func NewWindow(now time.Time, width, lag time.Duration) Window {
	end := now.UTC().Add(-lag).Truncate(time.Minute)
	start := end.Add(-width).Truncate(time.Minute)
	if !start.Before(end) {
		start = end.Add(-time.Minute)
	}
	return Window{Start: start, End: end}
}

// WindowFor computes the window of an engine from its configuration
func WindowFor(now time.Time, ec *config.EngineConfig) Window {
	return NewWindow(now, ec.WindowSize, ec.WindowLag)
}

// StartString formats the window start for a request
func (w Window) StartString() string {
	return w.Start.Format(windowLayout)
}

// EndString formats the window end for a request
func (w Window) EndString() string {
	return w.End.Format(windowLayout)
}

// Fetch requests one metric key for a node. Any collaborator failure,
// including a timeout, is returned as a *FetchError.
func Fetch(ctx context.Context, api API, engine config.Engine, nodeID, key string, window Window) (Response, error) {
	resp, err := api.GetPerformance(ctx, engine, nodeID, key, window)
	if err != nil {
		return nil, &FetchError{NodeID: nodeID, Key: key, Err: err}
	}
	return resp, nil
}
