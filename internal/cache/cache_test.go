package cache

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreThenLookupByteForByte(t *testing.T) {
	c := New(1<<20, nil)
	var fp [32]byte
	fp[0] = 1
	c.Store(fp, []byte("hello world"))

	entry, ok := c.Lookup(fp)
	require.True(t, ok)
	require.Equal(t, []byte("hello world"), entry.Response)
}

func TestZeroBudgetDisablesCache(t *testing.T) {
	c := New(0, nil)
	var fp [32]byte
	c.Store(fp, []byte("x"))
	_, ok := c.Lookup(fp)
	require.False(t, ok)
}

func TestLRUEvictionUnderByteBudget(t *testing.T) {
	c := New(10, nil)
	var a, b, cfp [32]byte
	a[0], b[0], cfp[0] = 1, 2, 3

	c.Store(a, []byte("1234567890")) // 10 bytes, fills budget
	c.Store(b, []byte("12345"))      // evicts a to make room
	_, aOK := c.Lookup(a)
	_, bOK := c.Lookup(b)
	require.False(t, aOK)
	require.True(t, bOK)
	_ = cfp
}

func TestComputeSingleFlight(t *testing.T) {
	c := New(1<<20, nil)
	var fp [32]byte
	fp[0] = 9

	var calls atomic.Int64
	var wg sync.WaitGroup
	results := make([][]byte, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err, _ := c.Compute(fp, func() ([]byte, error) {
				calls.Add(1)
				return []byte("computed"), nil
			})
			require.NoError(t, err)
			results[i] = resp
		}(i)
	}
	wg.Wait()

	require.Equal(t, int64(1), calls.Load(), "upstream must be invoked at most once for concurrent identical fingerprints")
	for _, r := range results {
		require.Equal(t, []byte("computed"), r)
	}

	snap := c.MetricsSnapshot()
	require.Equal(t, int64(1), snap.CacheMisses, "only the caller that starts the computation records a miss")
	require.Equal(t, int64(7), snap.CacheHits, "every joiner waiting on the in-flight computation records a hit")
	require.Equal(t, int64(1), snap.CacheStores)
}

// TestComputeTwoConcurrentCallersMatchesScenarioSix exercises the exact
// two-caller shape from §8 Scenario 6: two concurrent identical
// cache-eligible requests must record cache_hits+1, cache_misses+1,
// cache_stores+1 — not two misses.
func TestComputeTwoConcurrentCallersMatchesScenarioSix(t *testing.T) {
	c := New(1<<20, nil)
	var fp [32]byte
	fp[0] = 7

	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		_, err, _ := c.Compute(fp, func() ([]byte, error) {
			close(started)
			<-release
			return []byte("computed"), nil
		})
		require.NoError(t, err)
	}()

	<-started
	go func() {
		defer wg.Done()
		_, err, _ := c.Compute(fp, func() ([]byte, error) {
			t.Error("joiner must not invoke compute")
			return nil, nil
		})
		require.NoError(t, err)
	}()

	close(release)
	wg.Wait()

	snap := c.MetricsSnapshot()
	require.Equal(t, int64(1), snap.CacheHits)
	require.Equal(t, int64(1), snap.CacheMisses)
	require.Equal(t, int64(1), snap.CacheStores)
}

func TestEligibilityPredicateDefault(t *testing.T) {
	p, err := NewEligibilityPredicate("")
	require.NoError(t, err)

	require.True(t, p.Eligible(RequestContext{HasEphemeralMarker: true, Streaming: false}))
	require.False(t, p.Eligible(RequestContext{HasEphemeralMarker: false, Streaming: false}))
	require.False(t, p.Eligible(RequestContext{HasEphemeralMarker: true, Streaming: true}))
}

func TestEligibilityPredicateCustomExpression(t *testing.T) {
	p, err := NewEligibilityPredicate(`ToolCount == 0 && SystemBytes < 1000`)
	require.NoError(t, err)
	require.True(t, p.Eligible(RequestContext{ToolCount: 0, SystemBytes: 10}))
	require.False(t, p.Eligible(RequestContext{ToolCount: 1, SystemBytes: 10}))
}
