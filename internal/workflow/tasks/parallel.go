package tasks

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/JL710/workflowo/internal/logging"
)

var defaultThreadsOverride int

// SetDefaultThreads overrides the worker default for parallel groups
// that do not configure their own. Values below 1 are ignored.
func SetDefaultThreads(n int) {
	if n > 0 {
		defaultThreadsOverride = n
	}
}

// DefaultThreads is the worker count used when a parallel group does
// not configure one: host parallelism minus the dispatching thread,
// never below 1.
func DefaultThreads() int {
	if defaultThreadsOverride > 0 {
		return defaultThreadsOverride
	}
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// ParallelTask fans its children out to a bounded worker pool. There
// is no ordering guarantee between children and no nesting-aware
// scheduling: a parallel group inside a parallel group just occupies
// one worker while it recurses.
type ParallelTask struct {
	children []Task
	threads  int
}

func NewParallelTask(children []Task, threads int) *ParallelTask {
	if threads < 1 {
		threads = 1
	}
	return &ParallelTask{children: children, threads: threads}
}

type parallelResult struct {
	index int
	err   error
}

// Execute dispatches each child exactly once and collects one result
// per child off a shared completion channel. The first failure is
// returned immediately; still-running siblings are left to finish in
// the background and their results are discarded. There is no
// cooperative cancellation.
func (p *ParallelTask) Execute() error {
	workers := p.threads
	if workers > len(p.children) {
		workers = len(p.children)
	}

	// both channels are buffered to full capacity so detached workers
	// can always drain the queue and deliver results without a reader
	queue := make(chan int, len(p.children))
	results := make(chan parallelResult, len(p.children))
	for i := range p.children {
		queue <- i
	}
	close(queue)

	logging.Debug("starting parallel group", map[string]interface{}{
		"tasks":   len(p.children),
		"workers": workers,
	})
	for w := 0; w < workers; w++ {
		go func() {
			for i := range queue {
				results <- parallelResult{index: i, err: p.children[i].Execute()}
			}
		}()
	}

	for range p.children {
		result := <-results
		if result.err != nil {
			return fmt.Errorf("task %d of parallel group failed: %w", result.index, result.err)
		}
	}
	return nil
}

func (p *ParallelTask) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ParallelTask{ threads: %d, children: [ ", p.threads)
	for _, child := range p.children {
		b.WriteString(child.String())
		b.WriteString(" ")
	}
	b.WriteString("] }")
	return b.String()
}
