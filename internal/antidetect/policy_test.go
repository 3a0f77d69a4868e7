package antidetect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPolicy_NextDelayWithinBounds(t *testing.T) {
	t.Parallel()

	p := New(Config{MinDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond})
	for i := 0; i < 100; i++ {
		d := p.NextDelay()
		require.GreaterOrEqual(t, d, 100*time.Millisecond)
		require.LessOrEqual(t, d, 300*time.Millisecond)
	}
}

func TestPolicy_DefaultBounds(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	d := p.NextDelay()
	require.GreaterOrEqual(t, d, DefaultMinDelay)
	require.LessOrEqual(t, d, DefaultMaxDelay)
}

func TestPolicy_NextIdentityIsFullBrowserSet(t *testing.T) {
	t.Parallel()

	p := New(Config{UserAgents: []string{"test-agent/1.0"}})
	h := p.NextIdentity()

	require.Equal(t, "test-agent/1.0", h.Get("User-Agent"))
	for _, key := range []string{"Accept", "Accept-Language", "Accept-Encoding", "Connection", "Sec-Fetch-Mode"} {
		require.NotEmpty(t, h.Get(key), "header %s missing", key)
	}
}

func TestPolicy_NextIdentityRotatesAgents(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	seen := map[string]struct{}{}
	for i := 0; i < 200; i++ {
		seen[p.NextIdentity().Get("User-Agent")] = struct{}{}
	}
	require.Greater(t, len(seen), 1)
}

func TestPolicy_ConcurrentUse(t *testing.T) {
	t.Parallel()

	p := New(Config{MinDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				_ = p.NextDelay()
				_ = p.NextIdentity()
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
