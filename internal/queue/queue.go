// Package queue manages the playback queue.
//
// A Queue is not safe for concurrent use. It is owned by the player control
// loop, which is the only goroutine that reads or writes it.
package queue

import "github.com/rs/zerolog"

// RepeatMode describes how the queue advances once the current track ends.
type RepeatMode int

const (
	// RepeatOff consumes each track as it finishes.
	RepeatOff RepeatMode = iota
	// RepeatOne replays the current track.
	RepeatOne
	// RepeatAll cycles through the queue without removing anything.
	RepeatAll
)

// String returns the string representation of the repeat mode
func (r RepeatMode) String() string {
	switch r {
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return "off"
	}
}

// Queue is an ordered list of track locators with a cursor and two
// independent repeat flags.
type Queue struct {
	items    []string
	index    int
	loopCurr bool
	loopAll  bool
	log      zerolog.Logger
}

// New creates an empty queue that does not log
func New() *Queue {
	return NewWithLogger(zerolog.Nop())
}

// NewWithLogger creates an empty queue logging to logger
func NewWithLogger(logger zerolog.Logger) *Queue {
	return &Queue{
		items: make([]string, 0),
		log:   logger,
	}
}

// Peek returns the locator under the cursor
func (q *Queue) Peek() (string, bool) {
	if q.index < 0 || q.index >= len(q.items) {
		return "", false
	}
	return q.items[q.index], true
}

// Append adds a locator to the end of the queue. The cursor does not move.
func (q *Queue) Append(path string) {
	q.items = append(q.items, path)
}

// RemoveCurrent drops the entry under the cursor. Used when a track cannot be
// opened or decoded. Repeat flags are left alone.
func (q *Queue) RemoveCurrent() {
	if q.index < 0 || q.index >= len(q.items) {
		return
	}
	q.log.Debug().Str("path", q.items[q.index]).Int("index", q.index).Msg("entry removed")
	q.items = append(q.items[:q.index], q.items[q.index+1:]...)
	if q.index >= len(q.items) {
		q.index = 0
	}
}

// MoveNext advances the queue after the current track finished.
//
// With loop-current set nothing changes. With loop-all set the cursor moves
// forward and wraps to the start. Otherwise the current entry is consumed.
func (q *Queue) MoveNext() {
	if q.loopCurr {
		return
	}

	if q.loopAll {
		q.index++
		if q.index >= len(q.items) {
			q.index = 0
		}
		return
	}

	if q.index < len(q.items) {
		q.items = append(q.items[:q.index], q.items[q.index+1:]...)
	}
	if q.index >= len(q.items) {
		q.index = 0
	}
}

// Clear empties the queue and resets both repeat flags
func (q *Queue) Clear() {
	q.items = make([]string, 0)
	q.index = 0
	q.loopCurr = false
	q.loopAll = false
}

// IsEmpty reports whether the queue holds no entries
func (q *Queue) IsEmpty() bool {
	return len(q.items) == 0
}

// Len returns the number of entries
func (q *Queue) Len() int {
	return len(q.items)
}

// Index returns the cursor position
func (q *Queue) Index() int {
	return q.index
}

// Items returns a copy of all entries in queue order
func (q *Queue) Items() []string {
	items := make([]string, len(q.items))
	copy(items, q.items)
	return items
}

// LoopSong toggles replaying the current track
func (q *Queue) LoopSong() {
	q.loopCurr = !q.loopCurr
}

// LoopQueue toggles cycling through the whole queue
func (q *Queue) LoopQueue() {
	q.loopAll = !q.loopAll
}

// LoopingSong reports whether loop-current is set
func (q *Queue) LoopingSong() bool {
	return q.loopCurr
}

// LoopingQueue reports whether loop-all is set
func (q *Queue) LoopingQueue() bool {
	return q.loopAll
}

// Repeat returns the effective repeat mode. Loop-current wins over loop-all.
func (q *Queue) Repeat() RepeatMode {
	switch {
	case q.loopCurr:
		return RepeatOne
	case q.loopAll:
		return RepeatAll
	default:
		return RepeatOff
	}
}
