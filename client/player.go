// Package client is the participant-side counterpart of the sync server: it
// keeps a local player in lock-step with the room, hands negotiation
// payloads to the caller's WebRTC stack, and serves picked local files to
// the player over loopback.
package client

// Player is the local video player the controller drives. Rendering, codecs
// and capture live outside this package; implementations typically wrap a
// platform player or a browser video element bridge.
type Player interface {
	Play()
	Pause()
	SeekTo(seconds float64)
	Load(media string)
}

// FilePicker asks the user for a local file. It returns an empty path when
// the dialog was cancelled.
type FilePicker interface {
	PickVideo() (string, error)
	PickSubtitle() (string, error)
}
