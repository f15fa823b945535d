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

// SessionState tracks the handshake progress on top of one connection.
type SessionState int32

const (
	NoSession SessionState = iota
	Authenticating
	Authenticated
	SessionOpen
	Closing
)

func (s SessionState) String() string {
	switch s {
	case NoSession:
		return "no_session"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case SessionOpen:
		return "session_open"
	case Closing:
		return "closing"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// rpcCaller is the slice of the Router the session manager depends on.
type rpcCaller interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// SessionConfig holds the identity under which the application session is
// opened.
type SessionConfig struct {
	Participant   string
	Application   string
	Scope         string
	ExpirySeconds int64
}

// SessionManager performs the challenge/response handshake and manages the
// single logical application session on top of the connection. State is reset
// to NoSession whenever the supervisor tears the connection down; a torn-down
// connection unconditionally invalidates the session and auth token.
type SessionManager struct {
	rpc    rpcCaller
	signer domain.Signer
	cfg    SessionConfig
	logger *slog.Logger

	// opMu serializes Initiate, EnsureSession, and CloseSession so only one
	// handshake sequence runs at a time. stateMu guards the fields below for
	// concurrent readers (scheduler, submission paths).
	opMu    sync.Mutex
	stateMu sync.RWMutex

	state     SessionState
	token     string
	sessionID string
}

// NewSessionManager creates a SessionManager that issues its handshake calls
// through rpc and obtains challenge signatures from signer.
func NewSessionManager(rpc rpcCaller, signer domain.Signer, cfg SessionConfig, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		rpc:    rpc,
		signer: signer,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "session")),
		state:  NoSession,
	}
}

// State returns the current session state.
func (m *SessionManager) State() SessionState {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// IsReady reports whether the application session is open for submissions.
func (m *SessionManager) IsReady() bool {
	return m.State() == SessionOpen
}

// Initiate runs the full handshake sequence: request an auth challenge, sign
// it, verify, then open the application session. The steps are strictly
// sequential; any failure aborts the sequence, resets the state to NoSession,
// and is returned to the caller. The supervisor's reconnect loop is the only
// retry path.
func (m *SessionManager) Initiate(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.signer == nil {
		return fmt.Errorf("gateway/session: %w", domain.ErrSignerUnconfigured)
	}

	wallet := m.signer.Address()
	m.setState(Authenticating)

	if err := m.authenticate(ctx, wallet); err != nil {
		m.reset()
		return err
	}

	if err := m.openSession(ctx, wallet); err != nil {
		m.reset()
		return err
	}

	m.logger.Info("session established",
		slog.String("wallet", wallet),
		slog.String("participant", m.cfg.Participant),
		slog.String("session_id", m.SessionID()),
	)
	return nil
}

// EnsureSession is called lazily by submission paths. When the session is
// already open it returns immediately without issuing any call. When the
// connection is authenticated but the session is not open, it performs a
// one-shot session_open attempt. It never re-runs the full handshake.
func (m *SessionManager) EnsureSession(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	switch m.State() {
	case SessionOpen:
		return nil
	case Authenticated:
		if m.signer == nil {
			return fmt.Errorf("gateway/session: %w", domain.ErrSignerUnconfigured)
		}
		return m.openSession(ctx, m.signer.Address())
	default:
		return fmt.Errorf("gateway/session: state %s: %w", m.State(), domain.ErrSessionNotReady)
	}
}

// CloseSession issues a best-effort session_close and unconditionally resets
// the local session state. Remote failures are logged, not propagated.
func (m *SessionManager) CloseSession(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	sessionID := m.SessionID()
	if m.State() == SessionOpen && sessionID != "" {
		m.setState(Closing)
		if _, err := m.rpc.Call(ctx, methodSessionClose, sessionCloseParams{SessionID: sessionID}); err != nil {
			m.logger.Warn("session close failed",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
	}
	m.reset()
}

// Reset forces the session state back to NoSession and clears the stored auth
// token and session id. The supervisor calls this on every transition out of
// Connected.
func (m *SessionManager) Reset() {
	m.reset()
}

// SessionID returns the id of the open application session, or "" when none
// is open.
func (m *SessionManager) SessionID() string {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.sessionID
}

// authenticate runs steps (a)-(d): challenge request, signature, verify,
// token storage.
func (m *SessionManager) authenticate(ctx context.Context, wallet string) error {
	raw, err := m.rpc.Call(ctx, methodAuthChallenge, authChallengeParams{
		Wallet:      wallet,
		Participant: m.cfg.Participant,
		Application: m.cfg.Application,
		Scope:       m.cfg.Scope,
		ExpiresIn:   m.cfg.ExpirySeconds,
	})
	if err != nil {
		return fmt.Errorf("gateway/session: auth challenge: %w", err)
	}

	var challenge authChallengeResult
	if err := json.Unmarshal(raw, &challenge); err != nil {
		return fmt.Errorf("gateway/session: decode auth challenge: %w", err)
	}
	if challenge.ChallengeMessage == "" {
		return fmt.Errorf("gateway/session: empty challenge message")
	}

	signature, err := m.signer.Sign(challenge.ChallengeMessage)
	if err != nil {
		return fmt.Errorf("gateway/session: sign challenge: %w", err)
	}

	raw, err = m.rpc.Call(ctx, methodAuthVerify, authVerifyParams{
		Wallet:    wallet,
		Challenge: challenge.ChallengeMessage,
		Signature: signature,
	})
	if err != nil {
		return fmt.Errorf("gateway/session: auth verify: %w", err)
	}

	var verify authVerifyResult
	if err := json.Unmarshal(raw, &verify); err != nil {
		return fmt.Errorf("gateway/session: decode auth verify: %w", err)
	}
	if !verify.Success {
		return fmt.Errorf("gateway/session: auth verify rejected for wallet %s", wallet)
	}

	m.stateMu.Lock()
	m.token = verify.Token
	m.state = Authenticated
	m.stateMu.Unlock()
	return nil
}

// openSession runs step (e): open the single application session keyed by
// wallet, participant, and application plus a fresh nonce and timestamp.
func (m *SessionManager) openSession(ctx context.Context, wallet string) error {
	raw, err := m.rpc.Call(ctx, methodSessionOpen, sessionOpenParams{
		Wallet:      wallet,
		Participant: m.cfg.Participant,
		Application: m.cfg.Application,
		Nonce:       uuid.NewString(),
		Timestamp:   time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("gateway/session: session open: %w", err)
	}

	var opened sessionOpenResult
	if err := json.Unmarshal(raw, &opened); err != nil {
		return fmt.Errorf("gateway/session: decode session open: %w", err)
	}

	m.stateMu.Lock()
	m.sessionID = opened.SessionID
	m.state = SessionOpen
	m.stateMu.Unlock()
	return nil
}

func (m *SessionManager) setState(s SessionState) {
	m.stateMu.Lock()
	m.state = s
	m.stateMu.Unlock()
}

func (m *SessionManager) reset() {
	m.stateMu.Lock()
	m.state = NoSession
	m.token = ""
	m.sessionID = ""
	m.stateMu.Unlock()
}
