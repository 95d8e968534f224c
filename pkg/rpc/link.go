package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// ErrMethodNotFound is returned by a Handler (or synthesized by Link) when
// no handler recognizes a request's method. It reaches the caller's Call
// only as the text of the reply's error, in a plain error that does not
// wrap this sentinel (errors.Is does not match it).
var ErrMethodNotFound = errors.New("rpc: method not found")

// ErrLinkClosed is returned by Call/Notify once the Link has been closed.
var ErrLinkClosed = errors.New("rpc: link closed")

// Handler answers an incoming request. Returning ErrMethodNotFound (or
// wrapping it) causes Link to reply with a method_not_found error.
type Handler func(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error)

// NotifyHandler receives one-way notifications (no reply expected).
type NotifyHandler func(method string, params json.RawMessage)

// Link runs exactly one reader goroutine and one writer goroutine over a
// single io.ReadWriteCloser, so concurrent Call/Notify/reply writes from
// multiple goroutines never race on the wire — spec.md §4.4's "no
// concurrent writes to the same endpoint."
type Link struct {
	conn   io.ReadWriteCloser
	handle Handler
	notify NotifyHandler

	nextID  uint64
	writeCh chan *Envelope

	mu      sync.Mutex
	pending map[uint64]chan *Envelope
	closed  bool
	closeCh chan struct{}

	wg sync.WaitGroup
}

// NewLink wraps conn. handler may be nil if this side never serves
// requests; notifyHandler may be nil if this side ignores notifications.
func NewLink(conn io.ReadWriteCloser, handler Handler, notifyHandler NotifyHandler) *Link {
	return &Link{
		conn:    conn,
		handle:  handler,
		notify:  notifyHandler,
		writeCh: make(chan *Envelope, 16),
		pending: make(map[uint64]chan *Envelope),
		closeCh: make(chan struct{}),
	}
}

// Start launches the reader and writer goroutines. Call it once.
func (l *Link) Start() {
	l.wg.Add(2)
	go l.readLoop()
	go l.writeLoop()
}

// Close shuts the link down, unblocking any in-flight Call with
// ErrLinkClosed, and closes the underlying connection.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	for _, ch := range l.pending {
		close(ch)
	}
	l.pending = nil
	l.mu.Unlock()

	close(l.closeCh)
	err := l.conn.Close()
	l.wg.Wait()
	return err
}

// Call sends a request and blocks until a matching reply arrives, ctx is
// done, or the link closes.
func (l *Link) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal params: %w", err)
	}

	id := atomic.AddUint64(&l.nextID, 1)
	replyCh := make(chan *Envelope, 1)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrLinkClosed
	}
	l.pending[id] = replyCh
	l.mu.Unlock()

	env := &Envelope{Kind: KindRequest, ID: id, Method: method, Params: raw}
	select {
	case l.writeCh <- env:
	case <-l.closeCh:
		return nil, ErrLinkClosed
	case <-ctx.Done():
		l.forget(id)
		return nil, ctx.Err()
	}

	select {
	case reply, ok := <-replyCh:
		if !ok {
			return nil, ErrLinkClosed
		}
		if reply.Error != "" {
			return nil, fmt.Errorf("rpc: %s", reply.Error)
		}
		return reply.Reply, nil
	case <-ctx.Done():
		l.forget(id)
		return nil, ctx.Err()
	}
}

func (l *Link) forget(id uint64) {
	l.mu.Lock()
	delete(l.pending, id)
	l.mu.Unlock()
}

// Notify sends a one-way message with no reply expected.
func (l *Link) Notify(method string, params interface{}) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("rpc: marshal params: %w", err)
	}

	env := &Envelope{Kind: KindNotification, Method: method, Params: raw}
	select {
	case l.writeCh <- env:
		return nil
	case <-l.closeCh:
		return ErrLinkClosed
	}
}

func (l *Link) writeLoop() {
	defer l.wg.Done()
	for {
		select {
		case env := <-l.writeCh:
			if err := WriteFrame(l.conn, env); err != nil {
				return
			}
		case <-l.closeCh:
			return
		}
	}
}

func (l *Link) readLoop() {
	defer l.wg.Done()
	for {
		env, err := ReadFrame(l.conn)
		if err != nil {
			l.Close()
			return
		}

		switch env.Kind {
		case KindReply:
			l.mu.Lock()
			ch, ok := l.pending[env.ID]
			if ok {
				delete(l.pending, env.ID)
			}
			l.mu.Unlock()
			if ok {
				ch <- env
			}
		case KindNotification:
			if l.notify != nil {
				l.notify(env.Method, env.Params)
			}
		case KindRequest:
			go l.serve(env)
		}
	}
}

func (l *Link) serve(req *Envelope) {
	reply := &Envelope{Kind: KindReply, ID: req.ID}

	if l.handle == nil {
		reply.Error = fmt.Sprintf("%v: %s", ErrMethodNotFound, req.Method)
	} else {
		result, err := l.handle(context.Background(), req.Method, req.Params)
		if err != nil {
			if errors.Is(err, ErrMethodNotFound) {
				reply.Error = fmt.Sprintf("%v: %s", ErrMethodNotFound, req.Method)
			} else {
				reply.Error = err.Error()
			}
		} else {
			reply.Reply = result
		}
	}

	select {
	case l.writeCh <- reply:
	case <-l.closeCh:
	}
}
