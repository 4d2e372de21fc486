package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraser-isbester/aliyun-db-exporter/pkg/config"
)

func TestValidateConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Accounts = []config.Account{{Name: "prod"}}

	tests := []struct {
		name      string
		cfg       *config.Config
		daemonCfg *DaemonConfig
		wantErr   bool
	}{
		{name: "timer mode", cfg: cfg, daemonCfg: &DaemonConfig{Interval: time.Minute, HTTPPort: 9527}},
		{name: "scrape mode", cfg: cfg, daemonCfg: &DaemonConfig{ScrapeCacheTTL: time.Minute, HTTPPort: 9527}},
		{name: "scrape mode without ttl", cfg: cfg, daemonCfg: &DaemonConfig{HTTPPort: 9527}, wantErr: true},
		{name: "negative interval", cfg: cfg, daemonCfg: &DaemonConfig{Interval: -time.Second, HTTPPort: 9527}, wantErr: true},
		{name: "no port", cfg: cfg, daemonCfg: &DaemonConfig{Interval: time.Minute}, wantErr: true},
		{name: "no accounts", cfg: config.DefaultConfig(), daemonCfg: &DaemonConfig{Interval: time.Minute, HTTPPort: 9527}, wantErr: true},
		{name: "nil config", daemonCfg: &DaemonConfig{Interval: time.Minute, HTTPPort: 9527}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfig(tt.cfg, tt.daemonCfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDaemonStartStop(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Accounts = []config.Account{{Name: "prod", AccessKeyID: "ak", AccessKeySecret: "sk", RegionID: "cn-hangzhou"}}

	signals := NewTestSignalHandler()
	builder := &fakeBuilder{}
	d := newDaemon(cfg, &DaemonConfig{Interval: time.Hour, HTTPPort: 19527}, builder, signals)

	done := make(chan error, 1)
	go func() { done <- d.Start() }()

	require.Eventually(t, d.Ready, 5*time.Second, 10*time.Millisecond)
	signals.TriggerShutdown()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	assert.False(t, d.GetStatus().Running)
}

func TestDaemonWarmUpSharesScrapeCycle(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Accounts = []config.Account{{Name: "prod", AccessKeyID: "ak", AccessKeySecret: "sk", RegionID: "cn-hangzhou"}}

	started := make(chan struct{}, 8)
	release := make(chan struct{})
	builder := &fakeBuilder{onBuild: func(context.Context) {
		started <- struct{}{}
		<-release
	}}
	d := newDaemon(cfg, &DaemonConfig{ScrapeCacheTTL: time.Minute, HTTPPort: 19528}, builder, NewTestSignalHandler())
	defer d.Stop()

	d.wg.Add(1)
	go d.warmUp()
	<-started

	var scrapes sync.WaitGroup
	for i := 0; i < 4; i++ {
		scrapes.Add(1)
		go func() {
			defer scrapes.Done()
			assert.Equal(t, 1, d.source.Current().Len())
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)

	scrapes.Wait()
	d.wg.Wait()

	assert.Equal(t, int32(1), builder.calls.Load())
	assert.True(t, d.Ready())
}

func TestDaemonError(t *testing.T) {
	cause := errors.New("address in use")
	err := NewDaemonError("listen", "startup", cause)

	assert.Equal(t, "daemon listen during startup: address in use", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsRecoverable(err))

	cancelled := NewDaemonError("run_cycle", "", ErrCycleCancelled)
	assert.Equal(t, "daemon run_cycle: poll cycle cancelled", cancelled.Error())
	assert.True(t, IsRecoverable(cancelled))
}
