package worker

import (
	"context"
	"errors"
	"sync"

	"heic-to-jpg/internal/logging"
	"heic-to-jpg/internal/metrics"
)

var (
	// ErrReset is returned to callers whose request was in flight when the
	// client was reset.
	ErrReset = errors.New("reset")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("worker client closed")
)

type reply struct {
	result Result
	err    error
}

// session is one worker incarnation and the requests waiting on it.
type session struct {
	w        *Worker
	inflight map[string]chan reply
}

// Client dispatches requests to a lazily started Worker and routes each
// response back to its caller.
type Client struct {
	conv *Converter

	// OnCrash is called once per worker crash, after waiting callers have
	// been released. It must not call back into the client synchronously.
	OnCrash func(error)

	mu     sync.Mutex
	sess   *session
	closed bool
}

// NewClient returns a client. No goroutine starts until the first Process.
func NewClient(conv *Converter) *Client {
	return &Client{conv: conv}
}

// ensureLocked returns the live session, starting a worker if needed.
func (c *Client) ensureLocked() (*session, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if c.sess != nil {
		return c.sess, nil
	}

	s := &session{w: Start(c.conv), inflight: make(map[string]chan reply)}
	c.sess = s
	metrics.WorkerStartsTotal.Inc()
	logging.Debug("Conversion worker started")

	go c.pump(s)
	return s, nil
}

// Running reports whether a worker is currently alive.
func (c *Client) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

// Process sends one request and waits for its response, a reset, a crash,
// or ctx to end.
func (c *Client) Process(ctx context.Context, id string, src []byte, s Settings) (Result, error) {
	ch := make(chan reply, 1)

	c.mu.Lock()
	sess, err := c.ensureLocked()
	if err != nil {
		c.mu.Unlock()
		return Result{}, err
	}
	sess.inflight[id] = ch
	c.mu.Unlock()

	if err := sess.w.Post(Request{ID: id, Source: src, Settings: s}); err != nil {
		c.forget(sess, id)
		return Result{}, err
	}

	select {
	case r := <-ch:
		return r.result, r.err
	case <-ctx.Done():
		c.forget(sess, id)
		return Result{}, ctx.Err()
	}
}

func (c *Client) forget(sess *session, id string) {
	c.mu.Lock()
	delete(sess.inflight, id)
	c.mu.Unlock()
}

// pump routes responses of one session until its worker exits.
func (c *Client) pump(sess *session) {
	for {
		select {
		case resp := <-sess.w.Responses():
			c.mu.Lock()
			ch, ok := sess.inflight[resp.ID]
			delete(sess.inflight, resp.ID)
			c.mu.Unlock()

			if !ok {
				metrics.WorkerStaleResponsesTotal.Inc()
				logging.Debug("Dropping response for unknown request %s", resp.ID)
				continue
			}
			ch <- reply{result: resp.Result}

		case <-sess.w.Done():
			if err := sess.w.Err(); err != nil {
				c.crashed(sess, err)
			}
			return
		}
	}
}

func (c *Client) crashed(sess *session, err error) {
	c.mu.Lock()
	if c.sess == sess {
		c.sess = nil
	}
	rejectLocked(sess, ErrCrashed)
	hook := c.OnCrash
	c.mu.Unlock()

	metrics.WorkerCrashesTotal.Inc()
	logging.Error("Conversion worker crashed: %v", err)
	if hook != nil {
		hook(err)
	}
}

func rejectLocked(sess *session, err error) {
	for id, ch := range sess.inflight {
		ch <- reply{err: err}
		delete(sess.inflight, id)
	}
}

// Reset releases every waiting caller with ErrReset and terminates the
// worker. The next Process starts a fresh one.
func (c *Client) Reset() {
	c.shutdown(ErrReset, false)
}

// Close is Reset followed by refusing further requests.
func (c *Client) Close() {
	c.shutdown(ErrClosed, true)
}

func (c *Client) shutdown(err error, closing bool) {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	if closing {
		c.closed = true
	}
	if sess != nil {
		rejectLocked(sess, err)
	}
	c.mu.Unlock()

	if sess != nil {
		sess.w.Terminate()
		logging.Debug("Conversion worker terminated (%v)", err)
	}
}
