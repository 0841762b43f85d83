package nrf70

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerCoalesce(t *testing.T) {
	var runs atomic.Int32
	gate := make(chan struct{})
	w := newWorker(func() {
		runs.Add(1)
		<-gate
	})
	defer w.kill()

	w.schedule()
	waitFor(t, time.Second, func() bool { return runs.Load() == 1 }, "first run")

	// Five kicks while a run is in flight coalesce into a single rerun.
	for i := 0; i < 5; i++ {
		w.schedule()
	}
	close(gate)
	waitFor(t, time.Second, func() bool { return runs.Load() == 2 }, "coalesced rerun")
	time.Sleep(10 * time.Millisecond)
	if runs.Load() != 2 {
		t.Error("kicks did not coalesce, ran", runs.Load(), "times")
	}
}

func TestWorkerKill(t *testing.T) {
	var runs atomic.Int32
	w := newWorker(func() { runs.Add(1) })

	w.schedule()
	w.kill()
	if runs.Load() != 1 {
		t.Error("run scheduled before kill was dropped")
	}

	w.schedule() // no-op now
	w.kill()     // second kill is harmless
	time.Sleep(10 * time.Millisecond)
	if runs.Load() != 1 {
		t.Error("worker ran after kill")
	}
}
