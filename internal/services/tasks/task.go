package tasks

import "context"

// QueuedTask is the handle to a registered job that has not yet been
// admitted by the gate. Exactly one of Start or Close must win; Close is
// idempotent and safe to defer.
type QueuedTask struct {
	id   string
	reg  *Registry
	done bool
}

func (t *QueuedTask) ID() string {
	return t.id
}

func (t *QueuedTask) UpdateTitle(title string) {
	t.reg.updateTitle(t.id, title)
}

// Start blocks until a permit is available, then marks the task
// InProgress. The returned ActiveTask owns the permit. On context abort
// the task stays queued; the deferred Close finalizes it.
func (t *QueuedTask) Start(ctx context.Context, gate *Gate) (*ActiveTask, error) {
	if err := gate.acquire(ctx); err != nil {
		return nil, err
	}
	t.done = true
	t.reg.markStarted(t.id)
	return &ActiveTask{id: t.id, reg: t.reg, release: gate.release}, nil
}

// Close finalizes a task that never started, leaving its state intact.
func (t *QueuedTask) Close() {
	if t.done {
		return
	}
	t.done = true
	t.reg.finalize(t.id)
}

// ActiveTask is the handle to a running job. It holds one gate permit
// until Complete, Fail, or Close.
type ActiveTask struct {
	id      string
	reg     *Registry
	release func()
	done    bool
}

func (t *ActiveTask) ID() string {
	return t.id
}

func (t *ActiveTask) UpdateStatus(status string) {
	t.reg.updateStatus(t.id, status)
}

// Complete finalizes the task as Completed and counts a success.
func (t *ActiveTask) Complete() {
	if t.done {
		return
	}
	t.done = true
	t.reg.markCompleted(t.id)
	t.reg.finalize(t.id)
	t.release()
}

// Fail finalizes the task as Failed with the given message and counts a
// failure.
func (t *ActiveTask) Fail(message string) {
	if t.done {
		return
	}
	t.done = true
	t.reg.markFailed(t.id, message)
	t.reg.finalize(t.id)
	t.release()
}

// Close finalizes an abandoned task with its current state and no metric
// change. Safe to defer after Complete or Fail.
func (t *ActiveTask) Close() {
	if t.done {
		return
	}
	t.done = true
	t.reg.finalize(t.id)
	t.release()
}
