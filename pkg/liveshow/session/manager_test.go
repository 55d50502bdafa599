package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/overbid/liveshow/pkg/liveshow/rest"
	"github.com/overbid/liveshow/pkg/liveshow/session"
)

// fakeRestClient counts credential fetches and mute PATCHes.
type fakeRestClient struct {
	mu sync.Mutex

	credential *rest.Credential
	credErr    error

	fetches    int
	muteCalls  int
	muteErr    error
	lastMuted  bool
	lastShowID string
}

func (f *fakeRestClient) FetchCredential(ctx context.Context, room, userID, userName string) (*rest.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetches++
	if f.credErr != nil {
		return nil, f.credErr
	}

	cred := *f.credential
	return &cred, nil
}

func (f *fakeRestClient) GetShow(ctx context.Context, showID string) (*rest.Show, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRestClient) ListLiveShows(ctx context.Context) ([]rest.Show, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRestClient) SetAudioMuted(ctx context.Context, showID string, muted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.muteCalls++
	f.lastShowID = showID
	f.lastMuted = muted

	return f.muteErr
}

func (f *fakeRestClient) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.fetches
}

func (f *fakeRestClient) muteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.muteCalls
}

// fakeSession records device calls without any real transport.
type fakeSession struct {
	mu sync.Mutex

	connectErr error
	canPublish bool

	connected     bool
	closed        bool
	micEnabled    bool
	camEnabled    bool
	playbackMuted bool
	micErr        error
}

func (f *fakeSession) Connect(ctx context.Context, url, token string, ev session.SessionEvents) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true

	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	f.connected = false

	return nil
}

func (f *fakeSession) CanPublish() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.canPublish
}

func (f *fakeSession) SetCameraEnabled(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.camEnabled = enabled

	return nil
}

func (f *fakeSession) SetMicrophoneEnabled(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.micErr != nil {
		return f.micErr
	}
	f.micEnabled = enabled

	return nil
}

func (f *fakeSession) SetPlaybackMuted(muted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.playbackMuted = muted
}

func setupManager(t *testing.T, cred *rest.Credential) (*session.Manager, *fakeRestClient, *fakeSession) {
	t.Helper()

	rc := &fakeRestClient{credential: cred}
	fs := &fakeSession{canPublish: cred != nil && cred.Role == rest.RoleHost}
	mgr := session.NewManager(rc, func() session.MediaSession { return fs })

	return mgr, rc, fs
}

func hostCredential() *rest.Credential {
	return &rest.Credential{Token: "tok", URL: "wss://media.example/ws", Role: rest.RoleHost}
}

func viewerCredential() *rest.Credential {
	return &rest.Credential{Token: "tok", URL: "wss://media.example/ws", Role: rest.RoleViewer}
}

func TestConnect_Idempotent(t *testing.T) {
	mgr, rc, _ := setupManager(t, viewerCredential())
	cfg := session.Config{ShowID: "show-1", ViewerID: "viewer-1", ViewerName: "Ada", Enabled: true}

	if err := mgr.Connect(context.Background(), cfg); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := mgr.Connect(context.Background(), cfg); err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}

	if got := rc.fetchCount(); got != 1 {
		t.Errorf("expected exactly one credential fetch, got %d", got)
	}

	if mgr.State().Phase != session.PhaseConnected {
		t.Errorf("expected connected phase, got %q", mgr.State().Phase)
	}
}

func TestConnect_DisabledIsNoop(t *testing.T) {
	mgr, rc, _ := setupManager(t, viewerCredential())

	if err := mgr.Connect(context.Background(), session.Config{ShowID: "show-1", ViewerID: "v"}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if rc.fetchCount() != 0 {
		t.Error("disabled config still fetched a credential")
	}

	if mgr.State().Phase != session.PhaseIdle {
		t.Errorf("expected idle phase, got %q", mgr.State().Phase)
	}
}

func TestConnect_NoRetryAfterError(t *testing.T) {
	mgr, rc, _ := setupManager(t, viewerCredential())
	rc.credErr = errors.New("boom")

	cfg := session.Config{ShowID: "show-1", ViewerID: "viewer-1", Enabled: true}

	if err := mgr.Connect(context.Background(), cfg); err == nil {
		t.Fatal("expected connect error")
	}

	if mgr.State().Phase != session.PhaseError {
		t.Errorf("expected error phase, got %q", mgr.State().Phase)
	}

	// A new explicit Connect is allowed to try again.
	rc.credErr = nil
	if err := mgr.Connect(context.Background(), cfg); err != nil {
		t.Fatalf("explicit reconnect failed: %v", err)
	}

	if got := rc.fetchCount(); got != 2 {
		t.Errorf("expected 2 fetches for 2 explicit attempts, got %d", got)
	}
}

func TestConnect_RejectsUnusableCredential(t *testing.T) {
	mgr, _, _ := setupManager(t, &rest.Credential{Token: "", URL: "wss://media.example/ws", Role: rest.RoleViewer})

	err := mgr.Connect(context.Background(), session.Config{ShowID: "show-1", ViewerID: "v", Enabled: true})
	if !errors.Is(err, session.ErrCredential) {
		t.Errorf("expected ErrCredential, got %v", err)
	}
}

func TestConnect_RoleFromCredentialOnly(t *testing.T) {
	mgr, _, _ := setupManager(t, hostCredential())

	if err := mgr.Connect(context.Background(), session.Config{ShowID: "show-1", ViewerID: "host-1", Enabled: true}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if !mgr.State().IsHost {
		t.Error("host role from credential not reflected in state")
	}
}

func TestConnect_ShowChangeTearsDownOldSession(t *testing.T) {
	rc := &fakeRestClient{credential: viewerCredential()}

	var sessions []*fakeSession
	mgr := session.NewManager(rc, func() session.MediaSession {
		fs := &fakeSession{}
		sessions = append(sessions, fs)
		return fs
	})

	if err := mgr.Connect(context.Background(), session.Config{ShowID: "show-1", ViewerID: "v", Enabled: true}); err != nil {
		t.Fatalf("first Connect failed: %v", err)
	}

	if err := mgr.Connect(context.Background(), session.Config{ShowID: "show-2", ViewerID: "v", Enabled: true}); err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}

	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}

	if !sessions[0].closed {
		t.Error("previous show's session not closed on show change")
	}

	if sessions[1].closed {
		t.Error("new session closed unexpectedly")
	}
}

func TestDisconnect_ResetsState(t *testing.T) {
	mgr, _, fs := setupManager(t, hostCredential())

	if err := mgr.Connect(context.Background(), session.Config{ShowID: "show-1", ViewerID: "h", Enabled: true}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	mgr.Disconnect()

	if !fs.closed {
		t.Error("session not closed on Disconnect")
	}

	st := mgr.State()
	if st.Phase != session.PhaseIdle || st.IsHost || len(st.Participants) != 0 {
		t.Errorf("state not reset: %+v", st)
	}

	if mgr.Credential() != nil {
		t.Error("credential survived Disconnect")
	}
}

func TestToggleAudioMute_HostMutesMicAndPatches(t *testing.T) {
	mgr, rc, fs := setupManager(t, hostCredential())

	if err := mgr.Connect(context.Background(), session.Config{ShowID: "show-1", ViewerID: "h", Enabled: true}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	mgr.ToggleAudioMute(context.Background(), "show-1")

	if fs.micEnabled {
		t.Error("host mute left the microphone enabled")
	}

	if fs.playbackMuted {
		t.Error("host mute muted playback")
	}

	if got := rc.muteCount(); got != 1 {
		t.Errorf("expected exactly one PATCH, got %d", got)
	}

	if !rc.lastMuted || rc.lastShowID != "show-1" {
		t.Errorf("unexpected PATCH args: muted=%v show=%q", rc.lastMuted, rc.lastShowID)
	}
}

func TestToggleAudioMute_HostKeepsLocalMuteOnPatchFailure(t *testing.T) {
	mgr, rc, fs := setupManager(t, hostCredential())
	rc.muteErr = errors.New("backend down")

	if err := mgr.Connect(context.Background(), session.Config{ShowID: "show-1", ViewerID: "h", Enabled: true}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	mgr.ToggleAudioMute(context.Background(), "show-1")

	if fs.micEnabled {
		t.Error("PATCH failure undid the local microphone mute")
	}

	if !mgr.State().IsLocallyMuted {
		t.Error("PATCH failure undid the local mute state")
	}
}

func TestToggleAudioMute_ViewerIsPlaybackOnly(t *testing.T) {
	mgr, rc, fs := setupManager(t, viewerCredential())

	if err := mgr.Connect(context.Background(), session.Config{ShowID: "show-1", ViewerID: "v", Enabled: true}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	mgr.ToggleAudioMute(context.Background(), "show-1")

	if !fs.playbackMuted {
		t.Error("viewer mute did not mute playback")
	}

	if rc.muteCount() != 0 {
		t.Error("viewer mute made a network call")
	}

	// Toggling back restores playback without touching the network.
	mgr.ToggleAudioMute(context.Background(), "show-1")

	if fs.playbackMuted {
		t.Error("viewer unmute did not restore playback")
	}

	if rc.muteCount() != 0 {
		t.Error("viewer unmute made a network call")
	}
}

func TestToggleDevice_DeclinedWithoutPublishCapability(t *testing.T) {
	mgr, _, fs := setupManager(t, viewerCredential())
	fs.canPublish = false

	if err := mgr.Connect(context.Background(), session.Config{ShowID: "show-1", ViewerID: "v", Enabled: true}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := mgr.ToggleCamera(); err != nil {
		t.Errorf("expected silent decline, got %v", err)
	}

	if fs.camEnabled {
		t.Error("camera enabled without publish capability")
	}

	if mgr.State().LocalHasVideo {
		t.Error("state claims local video without publish capability")
	}
}

func TestToggleMicrophone_DeviceErrorIsInline(t *testing.T) {
	mgr, _, fs := setupManager(t, hostCredential())
	fs.micErr = errors.New("no such device")

	if err := mgr.Connect(context.Background(), session.Config{ShowID: "show-1", ViewerID: "h", Enabled: true}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := mgr.ToggleMicrophone(); err == nil {
		t.Fatal("expected device error")
	}

	st := mgr.State()
	if st.DeviceError == "" {
		t.Error("device error not surfaced inline")
	}

	// The room connection survives a device failure.
	if st.Phase != session.PhaseConnected {
		t.Errorf("device failure changed the phase: %q", st.Phase)
	}
}
