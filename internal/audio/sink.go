// Package audio provides the playback sink: decoding through beep and
// output through the native audio device.
package audio

// Sink plays one track at a time.
//
// Play returns a channel that is closed when the track ends, either because
// it played out or because it was stopped or replaced. Pause, Resume and Stop
// are no-ops without a loaded track.
type Sink interface {
	Play(path string) (<-chan struct{}, error)
	Pause()
	Resume()
	Stop()
	IsPaused() bool
	Close() error
}
