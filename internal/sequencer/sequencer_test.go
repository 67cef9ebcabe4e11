package sequencer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequencer_FirstIDIsOne(t *testing.T) {
	seq := New()

	assert.Equal(t, uint64(0), seq.CurrentInboundSeq())
	assert.Equal(t, uint64(1), seq.NextOrderID())
	assert.Equal(t, uint64(1), seq.CurrentInboundSeq())
}

func TestSequencer_MonotonicIDs(t *testing.T) {
	seq := New()

	prev := uint64(0)
	for range 100 {
		id := seq.NextOrderID()
		require.Greater(t, id, prev)
		prev = id
	}
	assert.Equal(t, uint64(100), seq.CurrentInboundSeq())
}

func TestSequencer_CountersAreIndependent(t *testing.T) {
	seq := New()

	seq.NextOrderID()
	seq.NextOrderID()
	seq.NextOrderID()

	assert.Equal(t, uint64(1), seq.NextTradeSeq())
	assert.Equal(t, uint64(3), seq.CurrentInboundSeq())
	assert.Equal(t, uint64(1), seq.CurrentOutboundSeq())
}

func TestSequencer_NoDuplicatesUnderContention(t *testing.T) {
	seq := New()

	var (
		mu   sync.Mutex
		seen = make(map[uint64]bool)
		wg   sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 250 {
				id := seq.NextOrderID()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 2000)
	assert.Equal(t, uint64(2000), seq.CurrentInboundSeq())
}
