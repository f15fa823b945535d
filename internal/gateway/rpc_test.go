package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/uuzor/predictx/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// frameRecorder captures outbound frames so tests can correlate responses.
type frameRecorder struct {
	mu     sync.Mutex
	frames []requestFrame
	err    error
}

func (f *frameRecorder) send(data []byte) error {
	if f.err != nil {
		return f.err
	}
	var frame requestFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	f.mu.Lock()
	f.frames = append(f.frames, frame)
	f.mu.Unlock()
	return nil
}

func (f *frameRecorder) last() requestFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames[len(f.frames)-1]
}

func respond(r *Router, id string, result any) {
	raw, _ := json.Marshal(result)
	frame, _ := json.Marshal(responseFrame{ID: id, Result: raw})
	r.HandleFrame(frame)
}

func TestCallResolvedByResponse(t *testing.T) {
	rec := &frameRecorder{}
	r := NewRouter(rec.send, time.Second, testLogger())

	go func() {
		// Wait for the frame to be sent, then answer it.
		for {
			rec.mu.Lock()
			n := len(rec.frames)
			rec.mu.Unlock()
			if n > 0 {
				break
			}
			time.Sleep(time.Millisecond)
		}
		respond(r, rec.last().ID, map[string]string{"status": "ok"})
	}()

	result, err := r.Call(context.Background(), "ping", map[string]string{"k": "v"})
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"ok"}`, string(result))
	require.Zero(t, r.PendingCount())
}

func TestCallDeadline(t *testing.T) {
	rec := &frameRecorder{}
	r := NewRouter(rec.send, 20*time.Millisecond, testLogger())

	_, err := r.Call(context.Background(), "ping", nil)
	require.ErrorIs(t, err, domain.ErrCallTimeout)
	require.Zero(t, r.PendingCount())
}

func TestCallSendFailure(t *testing.T) {
	rec := &frameRecorder{err: errors.New("socket closed")}
	r := NewRouter(rec.send, time.Second, testLogger())

	_, err := r.Call(context.Background(), "ping", nil)
	require.Error(t, err)
	require.Zero(t, r.PendingCount(), "failed sends must not leak pending entries")
}

func TestCallContextCancel(t *testing.T) {
	rec := &frameRecorder{}
	r := NewRouter(rec.send, time.Minute, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := r.Call(ctx, "ping", nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, r.PendingCount())
}

func TestRemoteErrorFrame(t *testing.T) {
	rec := &frameRecorder{}
	r := NewRouter(rec.send, time.Second, testLogger())

	go func() {
		for {
			rec.mu.Lock()
			n := len(rec.frames)
			rec.mu.Unlock()
			if n > 0 {
				break
			}
			time.Sleep(time.Millisecond)
		}
		frame, _ := json.Marshal(responseFrame{
			ID:    rec.last().ID,
			Error: &wireError{Code: 401, Message: "unauthorized"},
		})
		r.HandleFrame(frame)
	}()

	_, err := r.Call(context.Background(), "ping", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unauthorized")
	require.Contains(t, err.Error(), "401")
}

func TestFailAllResolvesEveryPendingCall(t *testing.T) {
	rec := &frameRecorder{}
	r := NewRouter(rec.send, time.Minute, testLogger())

	const calls = 5
	errCh := make(chan error, calls)
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Call(context.Background(), "ping", nil)
			errCh <- err
		}()
	}

	// Wait until every call is registered, then tear all of them down.
	require.Eventually(t, func() bool {
		return r.PendingCount() == calls
	}, time.Second, time.Millisecond)

	r.FailAll(domain.ErrConnectionLost)
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.ErrorIs(t, err, domain.ErrConnectionLost)
	}
	require.Zero(t, r.PendingCount())
}

func TestDuplicateResponseGoesToNotificationHandler(t *testing.T) {
	rec := &frameRecorder{}
	r := NewRouter(rec.send, time.Second, testLogger())

	notified := make(chan string, 1)
	r.SetNotificationHandler(func(method string, payload json.RawMessage) {
		notified <- method
	})

	go func() {
		for {
			rec.mu.Lock()
			n := len(rec.frames)
			rec.mu.Unlock()
			if n > 0 {
				break
			}
			time.Sleep(time.Millisecond)
		}
		id := rec.last().ID
		respond(r, id, map[string]string{"status": "ok"})
		// A second frame with the same id has no pending entry left to take.
		frame, _ := json.Marshal(responseFrame{ID: id, Method: "ping"})
		r.HandleFrame(frame)
	}()

	_, err := r.Call(context.Background(), "ping", nil)
	require.NoError(t, err)

	select {
	case method := <-notified:
		require.Equal(t, "ping", method)
	case <-time.After(time.Second):
		t.Fatal("duplicate response was not dispatched as a notification")
	}
}

func TestUnsolicitedFrameDispatchesNotification(t *testing.T) {
	rec := &frameRecorder{}
	r := NewRouter(rec.send, time.Second, testLogger())

	notified := make(chan string, 1)
	r.SetNotificationHandler(func(method string, payload json.RawMessage) {
		notified <- method
	})

	frame, _ := json.Marshal(responseFrame{Method: "price_update"})
	r.HandleFrame(frame)

	select {
	case method := <-notified:
		require.Equal(t, "price_update", method)
	case <-time.After(time.Second):
		t.Fatal("unsolicited frame was not dispatched")
	}
}

func TestUnparseableFrameIsDropped(t *testing.T) {
	rec := &frameRecorder{}
	r := NewRouter(rec.send, time.Second, testLogger())

	r.HandleFrame([]byte("not json")) // must not panic
	require.Zero(t, r.PendingCount())
}
