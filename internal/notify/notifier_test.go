package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/uuzor/predictx/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	name     string
	err      error
	titles   []string
	messages []string
}

func (r *recordingSender) Send(_ context.Context, title, message string) error {
	if r.err != nil {
		return r.err
	}
	r.titles = append(r.titles, title)
	r.messages = append(r.messages, message)
	return nil
}

func (r *recordingSender) Name() string { return r.name }

type stubSource struct {
	ch chan []byte
}

func (s *stubSource) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	return s.ch, nil
}

func busMessage(t *testing.T, event string, payload any) []byte {
	t.Helper()
	p, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := json.Marshal(busEnvelope{Event: event, Payload: p})
	require.NoError(t, err)
	return raw
}

func TestEnabled(t *testing.T) {
	require.False(t, NewNotifier(nil, nil, testLogger()).Enabled())
	require.True(t, NewNotifier([]Sender{&recordingSender{name: "x"}}, nil, testLogger()).Enabled())
}

func TestRenderContractSettled(t *testing.T) {
	env := busEnvelope{Event: domain.EventContractSettled}
	payload, _ := json.Marshal(domain.SettledEvent{
		ContractID:  "c-1",
		AssetID:     "BTC",
		ActualPrice: 64250.1234,
		IsCorrect:   true,
	})
	env.Payload = payload

	title, message, ok := render(env)
	require.True(t, ok)
	require.Equal(t, "Contract settled", title)
	require.Contains(t, message, "c-1 on BTC settled correct at 64250.1234")
}

func TestRenderGatewayStatus(t *testing.T) {
	cases := []struct {
		connected, ready bool
		title            string
	}{
		{true, true, "Gateway ready"},
		{true, false, "Gateway connected"},
		{false, false, "Gateway disconnected"},
	}
	for _, tc := range cases {
		payload, _ := json.Marshal(domain.GatewayStatusEvent{Connected: tc.connected, SessionReady: tc.ready})
		title, _, ok := render(busEnvelope{Event: domain.EventGatewayStatus, Payload: payload})
		require.True(t, ok)
		require.Equal(t, tc.title, title)
	}
}

func TestRenderSkipsUnknownEvent(t *testing.T) {
	_, _, ok := render(busEnvelope{Event: "prediction_created", Payload: []byte(`{}`)})
	require.False(t, ok)
}

func TestWatchDispatchesToAllSenders(t *testing.T) {
	tg := &recordingSender{name: "telegram"}
	dc := &recordingSender{name: "discord"}
	n := NewNotifier([]Sender{tg, dc}, nil, testLogger())

	src := &stubSource{ch: make(chan []byte, 1)}
	src.ch <- busMessage(t, domain.EventContractSettled, domain.SettledEvent{
		ContractID: "c-9", AssetID: "ETH", ActualPrice: 3000, IsCorrect: false,
	})
	close(src.ch)

	err := n.Watch(context.Background(), src)
	require.NoError(t, err)

	require.Equal(t, []string{"Contract settled"}, tg.titles)
	require.Equal(t, []string{"Contract settled"}, dc.titles)
	require.Contains(t, tg.messages[0], "incorrect")
}

func TestWatchFiltersByAllowedEvents(t *testing.T) {
	tg := &recordingSender{name: "telegram"}
	n := NewNotifier([]Sender{tg}, []string{domain.EventGatewayStatus}, testLogger())

	src := &stubSource{ch: make(chan []byte, 2)}
	src.ch <- busMessage(t, domain.EventContractSettled, domain.SettledEvent{ContractID: "c-1"})
	src.ch <- busMessage(t, domain.EventGatewayStatus, domain.GatewayStatusEvent{Connected: true, SessionReady: true})
	close(src.ch)

	err := n.Watch(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, []string{"Gateway ready"}, tg.titles)
}

func TestWatchStopsOnContextCancel(t *testing.T) {
	n := NewNotifier([]Sender{&recordingSender{name: "x"}}, nil, testLogger())
	src := &stubSource{ch: make(chan []byte)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Watch(ctx, src) }()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Watch did not stop on cancel")
	}
}

func TestDispatchContinuesPastFailingSender(t *testing.T) {
	bad := &recordingSender{name: "telegram", err: errors.New("429")}
	good := &recordingSender{name: "discord"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.dispatch(context.Background(), "t", "m")
	require.Error(t, err)
	require.Contains(t, err.Error(), "telegram")
	require.Equal(t, []string{"t"}, good.titles)
}

func TestHandleIgnoresGarbage(t *testing.T) {
	tg := &recordingSender{name: "telegram"}
	n := NewNotifier([]Sender{tg}, nil, testLogger())

	n.handle(context.Background(), []byte("not json"))
	require.Empty(t, tg.titles)
}
