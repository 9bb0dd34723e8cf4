package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninjabot/ninjaguard/automod/engine"
)

func writeFile(t *testing.T, path, content string) {
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "policy.toml")
	writeFile(t, path, `
escalation_threshold = 4.5
image_burst_window = "45s"
delete_concurrency = 3
removal_quota_day = 50
`)
	cfg, err := Load(path, engine.DefaultConfig())
	require.NoError(err)
	assert.Equal(4.5, cfg.EscalationThreshold)
	assert.Equal(45*time.Second, cfg.ImageBurstWindow)
	assert.Equal(3, cfg.DeleteConcurrency)
	assert.Equal(50, cfg.RemovalQuotaDay)

	// untouched keys keep defaults
	assert.Equal(2, cfg.DuplicateChannelsRequired)
	assert.Equal(60*time.Second, cfg.IdleTTL)
}

func TestLoadErrors(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()
	base := engine.DefaultConfig()

	_, err := Load(filepath.Join(dir, "missing.toml"), base)
	assert.Error(err)

	bad := filepath.Join(dir, "bad.toml")
	writeFile(t, bad, "escalation_threshold = = 3")
	_, err = Load(bad, base)
	assert.Error(err)

	invalid := filepath.Join(dir, "invalid.toml")
	writeFile(t, invalid, "escalation_threshold = -1")
	cfg, err := Load(invalid, base)
	var ce *engine.ConfigError
	assert.True(errors.As(err, &ce))
	assert.Equal("EscalationThreshold", ce.Field)
	assert.Equal(base, cfg)
}

type recordingUpdater struct {
	mu   sync.Mutex
	cfgs []engine.Config
}

func (u *recordingUpdater) UpdateConfig(cfg engine.Config) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cfgs = append(u.cfgs, cfg)
	return nil
}

func (u *recordingUpdater) last() (engine.Config, int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.cfgs) == 0 {
		return engine.Config{}, 0
	}
	return u.cfgs[len(u.cfgs)-1], len(u.cfgs)
}

func TestWatch(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "policy.toml")
	writeFile(t, path, "escalation_threshold = 3.0\n")

	ctx, cancel := context.WithCancel(context.Background())
	u := &recordingUpdater{}
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, engine.DefaultConfig(), u, nil)
	}()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "escalation_threshold = 7.0\n")
	assert.Eventually(func() bool {
		cfg, n := u.last()
		return n > 0 && cfg.EscalationThreshold == 7.0
	}, 5*time.Second, 20*time.Millisecond)

	// an invalid file is skipped
	_, before := u.last()
	writeFile(t, path, "escalation_threshold = 0\n")
	time.Sleep(reloadDelay * 3)
	cfg, after := u.last()
	assert.Equal(before, after)
	assert.Equal(7.0, cfg.EscalationThreshold)

	cancel()
	select {
	case err := <-done:
		assert.NoError(err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
