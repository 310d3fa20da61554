package async

import (
	"context"
)

// Task represents an asynchronous operation with a name and function.
type Task struct {
	Name string
	Func func(context.Context) error
}

// Result is the outcome of a single task.
type Result struct {
	Name string
	Err  error
}

// Run executes all tasks concurrently and waits for every one of them.
// Results are returned in task order, one per task, so callers can report
// each outcome individually instead of collapsing to a single error.
func Run(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	done := make(chan struct{})
	remaining := len(tasks)
	errs := make(chan struct {
		idx int
		err error
	}, len(tasks))

	for i, task := range tasks {
		results[i].Name = task.Name
		go func(idx int, fn func(context.Context) error) {
			errs <- struct {
				idx int
				err error
			}{idx, fn(ctx)}
		}(i, task.Func)
	}

	go func() {
		for remaining > 0 {
			res := <-errs
			results[res.idx].Err = res.err
			remaining--
		}
		close(done)
	}()

	<-done
	return results
}

// FirstError returns the first non-nil error in task order, or nil.
func FirstError(results []Result) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}
