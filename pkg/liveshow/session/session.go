// Package session owns one media session per active show view: credential
// fetch, media path negotiation, device toggles, and the connection state
// machine observers read.
package session

import "context"

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// TransportState is the media SDK's view of the connection.
type TransportState string

const (
	TransportConnected    TransportState = "connected"
	TransportReconnecting TransportState = "reconnecting"
	TransportFailed       TransportState = "failed"
	TransportClosed       TransportState = "closed"
)

// SessionEvents are the transport callbacks the manager folds into its
// observable state. All callbacks may fire from transport goroutines.
type SessionEvents struct {
	OnParticipantJoined func(participantID string, isHost bool)
	OnParticipantLeft   func(participantID string)
	// OnHostTrack fires when the remote host publishes or unpublishes a
	// track.
	OnHostTrack   func(kind TrackKind, active bool)
	OnStateChange func(state TransportState)
}

// MediaSession is the opaque SDK boundary of the real-time media
// transport. The manager never looks inside it.
type MediaSession interface {
	// Connect establishes the media path with a scoped credential.
	Connect(ctx context.Context, url, token string, ev SessionEvents) error
	Close() error

	// CanPublish is the server-issued capability flag gating device
	// publication.
	CanPublish() bool

	SetCameraEnabled(enabled bool) error
	SetMicrophoneEnabled(enabled bool) error

	// SetPlaybackMuted mutes local playback of remote audio only; it
	// never touches the network.
	SetPlaybackMuted(muted bool)
}
