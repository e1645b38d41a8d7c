package interrupt_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentin0-fiz0l/FluxStudio-sub015/internal/interrupt"
)

func TestRegistry_SetGetClear(t *testing.T) {
	r := interrupt.NewRegistry()

	_, ok := r.Get("s1")
	assert.False(t, ok, "empty registry should have no entry")

	r.Set("s1", interrupt.SignalRunning)
	sig, ok := r.Get("s1")
	require.True(t, ok)
	assert.Equal(t, interrupt.SignalRunning, sig)

	r.Set("s1", interrupt.SignalPaused)
	sig, _ = r.Get("s1")
	assert.Equal(t, interrupt.SignalPaused, sig)

	r.Clear("s1")
	_, ok = r.Get("s1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ClearAbsentIsNoop(t *testing.T) {
	r := interrupt.NewRegistry()
	r.Clear("never-registered")
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_IsolatedInstances(t *testing.T) {
	a := interrupt.NewRegistry()
	b := interrupt.NewRegistry()

	a.Set("s1", interrupt.SignalCancelled)
	_, ok := b.Get("s1")
	assert.False(t, ok, "registries must not share state")
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := interrupt.NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("session-%d", n%8)
			r.Set(id, interrupt.SignalRunning)
			r.Get(id)
			r.Set(id, interrupt.SignalCancelled)
			r.Clear(id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
}
