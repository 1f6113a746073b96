package registration

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestTaskRunner_RunsSubmittedTasks(t *testing.T) {
	r := NewTaskRunner(testLogger(), 8)
	r.Start(2)

	var ran atomic.Int64
	for i := 0; i < 5; i++ {
		ok := r.Submit(Task{
			Name: "count",
			Run: func(ctx context.Context) error {
				ran.Add(1)
				return nil
			},
		})
		if !ok {
			t.Fatalf("submit %d rejected", i)
		}
	}
	r.Stop()

	if got := ran.Load(); got != 5 {
		t.Errorf("ran %d tasks, want 5", got)
	}
}

func TestTaskRunner_FailureDoesNotStopWorkers(t *testing.T) {
	r := NewTaskRunner(testLogger(), 8)
	r.Start(1)

	var ran atomic.Int64
	r.Submit(Task{
		Name: "boom",
		Run: func(ctx context.Context) error {
			return errors.New("boom")
		},
	})
	r.Submit(Task{
		Name: "after",
		Run: func(ctx context.Context) error {
			ran.Add(1)
			return nil
		},
	})
	r.Stop()

	if ran.Load() != 1 {
		t.Error("worker did not survive a failing task")
	}
}

func TestTaskRunner_SubmitDropsWhenFull(t *testing.T) {
	// no workers started: the queue fills and stays full
	r := NewTaskRunner(testLogger(), 2)

	noop := Task{Name: "noop", Run: func(ctx context.Context) error { return nil }}
	if !r.Submit(noop) || !r.Submit(noop) {
		t.Fatal("queue rejected tasks below capacity")
	}
	if r.Submit(noop) {
		t.Error("full queue accepted a task")
	}
}
