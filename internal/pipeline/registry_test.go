package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SingleCaller(t *testing.T) {
	r := NewRegistry()
	val, shared, err := r.Do(context.Background(), "k", func() (interface{}, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.False(t, shared)
	assert.Equal(t, 42, val)
	assert.False(t, r.InFlight("k"))
}

func TestRegistry_ConcurrentCallersShareOneExecution(t *testing.T) {
	r := NewRegistry()
	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})

	fn := func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		return "result", nil
	}

	var wg sync.WaitGroup
	results := make([]interface{}, 2)
	sharedFlags := make([]bool, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		v, s, err := r.Do(context.Background(), "k", fn)
		require.NoError(t, err)
		results[0], sharedFlags[0] = v, s
	}()

	<-started // 确保首个作业已在途

	wg.Add(1)
	go func() {
		defer wg.Done()
		v, s, err := r.Do(context.Background(), "k", func() (interface{}, error) {
			atomic.AddInt32(&calls, 1)
			return "second", nil
		})
		require.NoError(t, err)
		results[1], sharedFlags[1] = v, s
	}()

	// 等第二个调用方挂到登记表上再放行
	require.Eventually(t, func() bool { return r.InFlight("k") }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "result", results[0])
	assert.Equal(t, "result", results[1])
	assert.False(t, sharedFlags[0])
	assert.True(t, sharedFlags[1])
}

func TestRegistry_WaiterCancelable(t *testing.T) {
	r := NewRegistry()
	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_, _, _ = r.Do(context.Background(), "k", func() (interface{}, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := r.Do(ctx, "k", func() (interface{}, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	close(release)
}

func TestRegistry_DifferentKeysRunIndependently(t *testing.T) {
	r := NewRegistry()
	var calls int32
	for _, key := range []string{"a", "b"} {
		_, _, err := r.Do(context.Background(), key, func() (interface{}, error) {
			atomic.AddInt32(&calls, 1)
			return nil, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), calls)
}
