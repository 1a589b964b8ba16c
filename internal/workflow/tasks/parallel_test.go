package tasks

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fnTask adapts a function to the Task interface.
type fnTask func() error

func (f fnTask) Execute() error { return f() }
func (f fnTask) String() string { return "fnTask" }

func TestParallelDispatchCompleteness(t *testing.T) {
	const n = 8
	counts := make([]int32, n)
	children := make([]Task, n)
	for i := 0; i < n; i++ {
		i := i
		children[i] = fnTask(func() error {
			atomic.AddInt32(&counts[i], 1)
			return nil
		})
	}

	group := NewParallelTask(children, 3)
	if err := group.Execute(); err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
	for i, count := range counts {
		if count != 1 {
			t.Errorf("child %d executed %d times, expected exactly once", i, count)
		}
	}
}

func TestParallelFailure(t *testing.T) {
	boom := errors.New("boom")
	children := []Task{
		fnTask(func() error { return nil }),
		fnTask(func() error { return boom }),
	}
	err := NewParallelTask(children, 2).Execute()
	if err == nil {
		t.Fatal("expected group to fail")
	}
	if !errors.Is(err, boom) {
		t.Errorf("original cause lost from the chain: %v", err)
	}
	if !strings.Contains(err.Error(), "parallel group") {
		t.Errorf("error must name the parallel group, got %q", err.Error())
	}
}

func TestParallelFailFastWithoutJoin(t *testing.T) {
	slowDone := make(chan struct{})
	children := []Task{
		fnTask(func() error { return errors.New("fails immediately") }),
		fnTask(func() error {
			time.Sleep(2 * time.Second)
			close(slowDone)
			return nil
		}),
	}

	start := time.Now()
	err := NewParallelTask(children, 2).Execute()
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected group to fail")
	}
	if elapsed > time.Second {
		t.Errorf("group blocked on the long-running child: took %v", elapsed)
	}
	select {
	case <-slowDone:
		t.Error("long-running child finished before the group returned, timing broken")
	default:
	}
	// the straggler keeps running detached and eventually completes
	select {
	case <-slowDone:
	case <-time.After(5 * time.Second):
		t.Error("detached child never completed")
	}
}

func TestParallelWorkerFloor(t *testing.T) {
	executed := false
	group := NewParallelTask([]Task{fnTask(func() error {
		executed = true
		return nil
	})}, 0)
	if err := group.Execute(); err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
	if !executed {
		t.Error("child did not run with clamped worker count")
	}
}

func TestDefaultThreadsMinimum(t *testing.T) {
	if DefaultThreads() < 1 {
		t.Errorf("default thread count below 1: %d", DefaultThreads())
	}
}
