package worker

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrCrashed is returned to callers waiting on a worker that panicked.
	ErrCrashed = errors.New("worker crashed")

	// ErrTerminated is returned when posting to a stopped worker.
	ErrTerminated = errors.New("worker terminated")
)

// Request asks the worker to convert Source. ID correlates the response.
type Request struct {
	ID       string
	Source   []byte
	Settings Settings
}

// Response carries the result for the request with the same ID.
type Response struct {
	ID     string
	Result Result
}

// Worker processes requests one at a time on its own goroutine.
type Worker struct {
	conv      *Converter
	requests  chan Request
	responses chan Response
	quit      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once

	// err is written before done is closed.
	err error
}

// Start launches a worker goroutine.
func Start(conv *Converter) *Worker {
	w := &Worker{
		conv:      conv,
		requests:  make(chan Request, 8),
		responses: make(chan Response, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			w.err = fmt.Errorf("%w: %v", ErrCrashed, r)
		}
	}()

	for {
		select {
		case <-w.quit:
			return
		case req := <-w.requests:
			res := w.conv.Convert(req.Source, req.Settings)
			select {
			case w.responses <- Response{ID: req.ID, Result: res}:
			case <-w.quit:
				return
			}
		}
	}
}

// Post queues a request. It fails once the worker has stopped.
func (w *Worker) Post(req Request) error {
	select {
	case <-w.done:
		return ErrTerminated
	default:
	}
	select {
	case w.requests <- req:
		return nil
	case <-w.done:
		return ErrTerminated
	}
}

// Responses delivers results in request order.
func (w *Worker) Responses() <-chan Response {
	return w.responses
}

// Done is closed when the worker goroutine exits.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Err returns the crash error once Done is closed, or nil after a normal
// termination.
func (w *Worker) Err() error {
	select {
	case <-w.done:
		return w.err
	default:
		return nil
	}
}

// Terminate stops the worker. A conversion already running finishes but
// its response is dropped.
func (w *Worker) Terminate() {
	w.stopOnce.Do(func() { close(w.quit) })
}
