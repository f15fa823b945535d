package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/uuzor/predictx/internal/domain"
)

// SendFunc writes one serialized frame to the transport.
type SendFunc func(data []byte) error

// NotificationHandler receives unsolicited inbound frames that do not
// correlate to any pending call.
type NotificationHandler func(method string, payload json.RawMessage)

// callOutcome is the single resolution of a pending call: either a raw result
// or an error, never both.
type callOutcome struct {
	result json.RawMessage
	err    error
}

// pendingCall tracks one outstanding request until its response arrives or
// its deadline fires.
type pendingCall struct {
	method      string
	submittedAt time.Time
	done        chan callOutcome // buffered; written exactly once by the taker
	timer       *time.Timer
}

// Router correlates outbound calls with inbound response frames. Any number
// of calls may be outstanding at once; responses resolve in whatever order
// they arrive. Each pending call is resolved exactly once — by its response,
// its deadline, or FailAll — whichever takes the entry first.
type Router struct {
	send    SendFunc
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingCall

	notifyMu sync.RWMutex
	notify   NotificationHandler
}

// NewRouter creates a Router that serializes frames through send and applies
// the given per-call deadline.
func NewRouter(send SendFunc, timeout time.Duration, logger *slog.Logger) *Router {
	return &Router{
		send:    send,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "rpc")),
		pending: make(map[string]*pendingCall),
	}
}

// SetNotificationHandler registers the sink for unsolicited inbound frames.
func (r *Router) SetNotificationHandler(h NotificationHandler) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	r.notify = h
}

// PendingCount reports how many calls are currently outstanding.
func (r *Router) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Call issues a request with a fresh correlation id and blocks until the
// matching response arrives, the deadline fires, the connection is torn down,
// or ctx is cancelled.
func (r *Router) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("gateway/rpc: marshal %s params: %w", method, err)
		}
		rawParams = data
	}

	id := uuid.NewString()
	frame := requestFrame{
		ID:        id,
		Method:    method,
		Params:    rawParams,
		Timestamp: time.Now().UnixMilli(),
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("gateway/rpc: marshal %s frame: %w", method, err)
	}

	call := &pendingCall{
		method:      method,
		submittedAt: time.Now(),
		done:        make(chan callOutcome, 1),
	}

	// Register before sending so a fast response cannot race the insert. The
	// deadline timer shares the same take path as the response, so exactly
	// one of them resolves the call.
	r.mu.Lock()
	r.pending[id] = call
	call.timer = time.AfterFunc(r.timeout, func() {
		if c := r.take(id); c != nil {
			c.done <- callOutcome{err: fmt.Errorf("gateway/rpc: %s after %s: %w", method, r.timeout, domain.ErrCallTimeout)}
		}
	})
	r.mu.Unlock()

	if err := r.send(data); err != nil {
		if c := r.take(id); c != nil {
			c.timer.Stop()
		}
		return nil, fmt.Errorf("gateway/rpc: send %s: %w", method, err)
	}

	select {
	case out := <-call.done:
		call.timer.Stop()
		return out.result, out.err
	case <-ctx.Done():
		if c := r.take(id); c != nil {
			c.timer.Stop()
			return nil, fmt.Errorf("gateway/rpc: %s: %w", method, ctx.Err())
		}
		// The call was resolved concurrently with the cancellation; honor
		// the delivered outcome.
		out := <-call.done
		call.timer.Stop()
		return out.result, out.err
	}
}

// HandleFrame routes one raw inbound frame: matching responses resolve their
// pending call, unsolicited frames go to the notification handler, and
// unparseable frames are dropped with a log line.
func (r *Router) HandleFrame(raw []byte) {
	var frame responseFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		r.logger.Warn("dropping unparseable frame",
			slog.String("error", err.Error()),
			slog.Int("size", len(raw)),
		)
		return
	}

	if frame.ID == "" {
		r.dispatchNotification(frame.Method, frame.Result)
		return
	}

	call := r.take(frame.ID)
	if call == nil {
		// Late response after timeout, or an id we never issued.
		r.dispatchNotification(frame.Method, frame.Result)
		return
	}
	call.timer.Stop()

	if frame.Error != nil {
		call.done <- callOutcome{err: fmt.Errorf("gateway/rpc: %s: remote error %d: %w", call.method, frame.Error.Code, frame.Error)}
		return
	}
	call.done <- callOutcome{result: frame.Result}
}

// FailAll resolves every outstanding call with err. Used when the connection
// is torn down so no call is left pending across a connection boundary.
func (r *Router) FailAll(err error) {
	r.mu.Lock()
	taken := r.pending
	r.pending = make(map[string]*pendingCall)
	r.mu.Unlock()

	for _, call := range taken {
		call.timer.Stop()
		call.done <- callOutcome{err: fmt.Errorf("gateway/rpc: %s: %w", call.method, err)}
	}

	if len(taken) > 0 {
		r.logger.Warn("failed all pending calls",
			slog.Int("count", len(taken)),
			slog.String("reason", err.Error()),
		)
	}
}

// take removes and returns the pending call for id, or nil when it was
// already resolved. Removal is atomic: of the response path, the deadline
// path, and FailAll, only the caller that takes the entry may resolve it.
func (r *Router) take(id string) *pendingCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.pending[id]
	if !ok {
		return nil
	}
	delete(r.pending, id)
	return call
}

func (r *Router) dispatchNotification(method string, payload json.RawMessage) {
	r.notifyMu.RLock()
	h := r.notify
	r.notifyMu.RUnlock()

	if h == nil {
		r.logger.Debug("ignoring unsolicited frame", slog.String("method", method))
		return
	}
	h(method, payload)
}
