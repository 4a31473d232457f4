package player

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/altkeys/grapevined/internal/media"
	"github.com/altkeys/grapevined/internal/queue"
)

func TestLoopStatusFromRepeatMode(t *testing.T) {
	tests := []struct {
		mode queue.RepeatMode
		want media.LoopStatus
	}{
		{queue.RepeatOff, media.LoopNone},
		{queue.RepeatOne, media.LoopTrack},
		{queue.RepeatAll, media.LoopPlaylist},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, loopStatus(tt.mode))
		})
	}
}

func TestLoopStatusFollowsQueueFlags(t *testing.T) {
	q := queue.New()
	q.Append("/a.mp3")

	q.LoopQueue()
	assert.Equal(t, media.LoopPlaylist, loopStatus(q.Repeat()))

	q.LoopSong()
	assert.Equal(t, media.LoopTrack, loopStatus(q.Repeat()), "looping the song wins")

	q.Clear()
	assert.Equal(t, media.LoopNone, loopStatus(q.Repeat()))
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "playing", Playing.String())
	assert.Equal(t, "paused", Paused.String())

	assert.Equal(t, media.StateStopped, Idle.mediaState())
	assert.Equal(t, media.StatePlaying, Playing.mediaState())
	assert.Equal(t, media.StatePaused, Paused.mediaState())
}
