package player

import (
	"github.com/altkeys/grapevined/internal/audio"
	"github.com/altkeys/grapevined/internal/media"
	"github.com/altkeys/grapevined/internal/queue"
)

// State is the playback state owned by the control loop
type State int

const (
	Idle State = iota
	Playing
	Paused
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "idle"
	}
}

func (s State) mediaState() media.PlaybackState {
	switch s {
	case Playing:
		return media.StatePlaying
	case Paused:
		return media.StatePaused
	default:
		return media.StateStopped
	}
}

// loopStatus maps the queue repeat mode to the MPRIS loop status
func loopStatus(mode queue.RepeatMode) media.LoopStatus {
	switch mode {
	case queue.RepeatOne:
		return media.LoopTrack
	case queue.RepeatAll:
		return media.LoopPlaylist
	default:
		return media.LoopNone
	}
}

// Status is the DATA payload of a STATUS reply
type Status struct {
	State         string           `json:"state"`
	Current       string           `json:"current,omitempty"`
	QueueLength   int              `json:"queue_length"`
	LoopSong      bool             `json:"loop_song"`
	LoopQueue     bool             `json:"loop_queue"`
	Track         *audio.TrackInfo `json:"track,omitempty"`
	Uptime        string           `json:"uptime"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// published is what the media session was last told
type published struct {
	state media.PlaybackState
	meta  media.Metadata
	loop  media.LoopStatus
}
