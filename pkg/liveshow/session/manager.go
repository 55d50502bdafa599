package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/overbid/liveshow/pkg/liveshow/rest"
)

// Phase is the externally observable connection phase. Transport-level
// reconnection blips do not leave Connected; observers only see a change
// when reconnection fails outright.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseConnecting Phase = "connecting"
	PhaseConnected  Phase = "connected"
	PhaseError      Phase = "error"
)

// ErrCredential marks a token response missing a usable token or endpoint
// URL. Terminal for the attempt: the manager never retries on its own.
var ErrCredential = errors.New("session: unusable credential response")

// Config is immutable per connection attempt. A change of ShowID
// invalidates any in-flight or established connection.
type Config struct {
	ShowID     string
	ViewerID   string
	ViewerName string
	Enabled    bool
}

func (c Config) key() string {
	return c.ShowID + "/" + c.ViewerID
}

// State is the observable connection state. IsHost is server-assigned via
// the credential role and never trusted from client input.
type State struct {
	Phase     Phase
	LastError error

	IsHost         bool
	LocalHasVideo  bool
	LocalHasAudio  bool
	IsLocallyMuted bool

	RemoteHostHasVideo bool
	RemoteHostHasAudio bool
	RemoteHostCount    int

	// DeviceError is an inline, non-fatal device failure; the room
	// connection stays up without publishing.
	DeviceError string

	// Participants is transport-derived room membership; a participant
	// id is not a permission.
	Participants      map[string]struct{}
	HostParticipantID string
}

// Manager is the session connection manager for one show view. At most
// one connection attempt per (showID, viewerID) until explicit teardown.
type Manager struct {
	restClient rest.Client
	newSession func() MediaSession

	mu           sync.Mutex
	state        State
	session      MediaSession
	attemptedKey string
	credential   *rest.Credential
}

func NewManager(restClient rest.Client, newSession func() MediaSession) *Manager {
	return &Manager{
		restClient: restClient,
		newSession: newSession,
		state:      initialState(),
	}
}

func initialState() State {
	return State{
		Phase:        PhaseIdle,
		Participants: make(map[string]struct{}),
	}
}

// State returns a copy of the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state
	st.Participants = make(map[string]struct{}, len(m.state.Participants))
	for id := range m.state.Participants {
		st.Participants[id] = struct{}{}
	}

	return st
}

// Credential returns the credential of the established connection, if any.
func (m *Manager) Credential() *rest.Credential {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.credential
}

// Connect is idempotent: while an attempt for the same (showID, viewerID)
// is in flight or established, it is a no-op. A connection error is
// terminal until Connect is explicitly invoked again; there is no
// automatic retry, so a token endpoint rejecting for policy reasons (room
// ended) is not hammered.
func (m *Manager) Connect(ctx context.Context, cfg Config) error {
	if !cfg.Enabled {
		return nil
	}

	m.mu.Lock()

	if m.attemptedKey == cfg.key() && (m.state.Phase == PhaseConnecting || m.state.Phase == PhaseConnected) {
		m.mu.Unlock()
		return nil
	}

	// A different show invalidates whatever is currently held.
	if m.attemptedKey != "" && m.attemptedKey != cfg.key() {
		m.teardownLocked()
	}

	m.attemptedKey = cfg.key()
	m.state.Phase = PhaseConnecting
	m.state.LastError = nil
	m.mu.Unlock()

	cred, err := m.restClient.FetchCredential(ctx, cfg.ShowID, cfg.ViewerID, cfg.ViewerName)
	if err != nil {
		return m.failConnect(fmt.Errorf("fetch credential: %w", err))
	}

	if cred.Token == "" || cred.URL == "" {
		return m.failConnect(fmt.Errorf("%w: token=%t url=%t", ErrCredential, cred.Token != "", cred.URL != ""))
	}

	sess := m.newSession()

	// isHost is stored before any observer can read a Connected state,
	// and comes only from the server-supplied role.
	m.mu.Lock()
	m.credential = cred
	m.state.IsHost = cred.Role == rest.RoleHost
	m.session = sess
	m.mu.Unlock()

	err = sess.Connect(ctx, cred.URL, cred.Token, SessionEvents{
		OnParticipantJoined: m.onParticipantJoined,
		OnParticipantLeft:   m.onParticipantLeft,
		OnHostTrack:         m.onHostTrack,
		OnStateChange:       m.onTransportState,
	})
	if err != nil {
		m.mu.Lock()
		m.session = nil
		m.credential = nil
		m.mu.Unlock()

		return m.failConnect(fmt.Errorf("connect media session: %w", err))
	}

	m.mu.Lock()
	m.state.Phase = PhaseConnected
	m.mu.Unlock()

	slog.Info("media session connected",
		slog.String("show_id", cfg.ShowID),
		slog.String("viewer_id", cfg.ViewerID),
		slog.Bool("is_host", cred.Role == rest.RoleHost),
	)

	return nil
}

func (m *Manager) failConnect(err error) error {
	m.mu.Lock()
	m.state.Phase = PhaseError
	m.state.LastError = err
	m.mu.Unlock()

	slog.Error("session connect failed", slog.Any("error", err))

	return err
}

// Disconnect tears down the session, releases device handles, and resets
// state to initial values. Safe to call when not connected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.teardownLocked()
}

func (m *Manager) teardownLocked() {
	if m.session != nil {
		if err := m.session.Close(); err != nil {
			slog.Warn("close media session", slog.Any("error", err))
		}
		m.session = nil
	}

	m.credential = nil
	m.attemptedKey = ""
	m.state = initialState()
}

// ToggleCamera flips camera enablement. Without publish capability it
// declines silently rather than erroring.
func (m *Manager) ToggleCamera() error {
	return m.toggleDevice(TrackVideo)
}

// ToggleMicrophone flips microphone enablement with the same gating as
// ToggleCamera.
func (m *Manager) ToggleMicrophone() error {
	return m.toggleDevice(TrackAudio)
}

func (m *Manager) toggleDevice(kind TrackKind) error {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()

	if sess == nil {
		slog.Warn("device toggle while not connected", slog.String("kind", string(kind)))
		return nil
	}

	if !sess.CanPublish() {
		slog.Warn("device toggle without publish capability", slog.String("kind", string(kind)))
		return nil
	}

	m.mu.Lock()
	var enable bool
	if kind == TrackVideo {
		enable = !m.state.LocalHasVideo
	} else {
		enable = !m.state.LocalHasAudio
	}
	m.mu.Unlock()

	var err error
	if kind == TrackVideo {
		err = sess.SetCameraEnabled(enable)
	} else {
		err = sess.SetMicrophoneEnabled(enable)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.state.DeviceError = err.Error()
		return err
	}

	m.state.DeviceError = ""
	if kind == TrackVideo {
		m.state.LocalHasVideo = enable
	} else {
		m.state.LocalHasAudio = enable
	}

	return nil
}

// ToggleAudioMute bifurcates by role. The host mutes the outgoing
// microphone and additionally propagates a room-level muted flag so every
// viewer sees it; both effects are best-effort and a PATCH failure never
// undoes the local mute. A viewer only mutes local playback and makes no
// network call.
func (m *Manager) ToggleAudioMute(ctx context.Context, showID string) {
	m.mu.Lock()
	sess := m.session
	isHost := m.state.IsHost
	muted := !m.state.IsLocallyMuted
	m.mu.Unlock()

	if sess == nil {
		slog.Warn("audio mute toggle while not connected")
		return
	}

	if isHost {
		if err := sess.SetMicrophoneEnabled(!muted); err != nil {
			slog.Warn("mute outgoing microphone", slog.Any("error", err))
			return
		}

		m.mu.Lock()
		m.state.IsLocallyMuted = muted
		m.state.LocalHasAudio = !muted
		m.mu.Unlock()

		if err := m.restClient.SetAudioMuted(ctx, showID, muted); err != nil {
			// Local mute already took effect and stays.
			slog.Warn("propagate room mute flag", slog.Any("error", err))
		}

		return
	}

	sess.SetPlaybackMuted(muted)

	m.mu.Lock()
	m.state.IsLocallyMuted = muted
	m.mu.Unlock()
}

func (m *Manager) onParticipantJoined(participantID string, isHost bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Participants[participantID] = struct{}{}
	if isHost {
		m.state.HostParticipantID = participantID
		m.state.RemoteHostCount++
	}
}

func (m *Manager) onParticipantLeft(participantID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.state.Participants, participantID)
	if m.state.HostParticipantID == participantID {
		m.state.HostParticipantID = ""
		if m.state.RemoteHostCount > 0 {
			m.state.RemoteHostCount--
		}
		m.state.RemoteHostHasAudio = false
		m.state.RemoteHostHasVideo = false
	}
}

func (m *Manager) onHostTrack(kind TrackKind, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch kind {
	case TrackAudio:
		m.state.RemoteHostHasAudio = active
	case TrackVideo:
		m.state.RemoteHostHasVideo = active
	}
}

// onTransportState maps SDK state changes onto the external phase. A
// reconnecting blip stays Connected; a hard failure surfaces through the
// same path as an explicit teardown and is not retried silently.
func (m *Manager) onTransportState(state TransportState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch state {
	case TransportReconnecting:
		slog.Info("media transport reconnecting")
	case TransportFailed:
		m.state.Phase = PhaseError
		m.state.LastError = errors.New("session: media transport failed")
	case TransportClosed:
		if m.state.Phase == PhaseConnected {
			m.state.Phase = PhaseIdle
		}
	case TransportConnected:
	}
}
