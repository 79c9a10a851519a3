package frwmutex_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/segstore/internal/frwmutex"
)

func TestMultipleReadersConcurrent(t *testing.T) {
	m := frwmutex.New()
	m.RLock()
	defer m.RUnlock()

	done := make(chan struct{})
	go func() {
		m.RLock()
		m.RUnlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second reader blocked behind an already-held read lock")
	}
}

func TestWriterExcludesReaders(t *testing.T) {
	m := frwmutex.New()
	m.Lock()

	acquired := make(chan struct{})
	go func() {
		m.RLock()
		close(acquired)
		m.RUnlock()
	}()

	select {
	case <-acquired:
		t.Fatal("reader acquired the lock while a writer held it")
	case <-time.After(50 * time.Millisecond):
	}
	m.Unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("reader never acquired the lock after the writer released it")
	}
}

func TestTryLockFailsWhileHeld(t *testing.T) {
	m := frwmutex.New()
	m.RLock()
	require.False(t, m.TryLock())
	m.RUnlock()
	require.True(t, m.TryLock())
	m.Unlock()
}

func TestFIFOFairnessLetsWriterCutInLine(t *testing.T) {
	// A writer queued behind a held read lock must be serviced before a
	// reader that arrives after it (spec §5: FIFO fairness prevents
	// compaction starvation under sustained read load).
	m := frwmutex.New()
	m.RLock()

	var order []string
	var mu sync.Mutex
	record := func(who string) {
		mu.Lock()
		order = append(order, who)
		mu.Unlock()
	}

	writerReady := make(chan struct{})
	go func() {
		close(writerReady)
		m.Lock()
		record("writer")
		m.Unlock()
	}()
	<-writerReady
	time.Sleep(20 * time.Millisecond) // let the writer enqueue behind the held read lock

	readerDone := make(chan struct{})
	go func() {
		m.RLock()
		record("late-reader")
		m.RUnlock()
		close(readerDone)
	}()
	time.Sleep(20 * time.Millisecond)

	m.RUnlock() // release the original read lock; writer should go next
	<-readerDone

	require.Equal(t, []string{"writer", "late-reader"}, order)
}
