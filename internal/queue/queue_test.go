package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filled(paths ...string) *Queue {
	q := New()
	for _, p := range paths {
		q.Append(p)
	}
	return q
}

func TestNew(t *testing.T) {
	q := New()

	require.NotNil(t, q)
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, RepeatOff, q.Repeat())

	_, ok := q.Peek()
	assert.False(t, ok, "empty queue has no current track")
}

func TestAppendKeepsFIFOOrder(t *testing.T) {
	q := New()
	paths := []string{"/path/1.mp3", "/path/2.mp3", "/path/3.mp3"}

	for _, p := range paths {
		q.Append(p)

		head, ok := q.Peek()
		require.True(t, ok)
		assert.Equal(t, "/path/1.mp3", head, "append must not move the cursor")
	}

	assert.Equal(t, paths, q.Items())
}

func TestPeekAfterConsumingReturnsNextInsertion(t *testing.T) {
	q := filled("/path/1.mp3", "/path/2.mp3", "/path/3.mp3")

	q.MoveNext()
	head, _ := q.Peek()
	assert.Equal(t, "/path/2.mp3", head)

	q.Append("/path/4.mp3")
	q.MoveNext()
	head, _ = q.Peek()
	assert.Equal(t, "/path/3.mp3", head)
}

func TestMoveNextLoopCurrentIsStable(t *testing.T) {
	tests := []struct {
		name    string
		paths   []string
		advance int
		loopAll bool
	}{
		{name: "single entry", paths: []string{"/a.mp3"}},
		{name: "several entries", paths: []string{"/a.mp3", "/b.mp3", "/c.mp3"}},
		{name: "cursor mid queue", paths: []string{"/a.mp3", "/b.mp3", "/c.mp3"}, advance: 1, loopAll: true},
		{name: "loop all also set", paths: []string{"/a.mp3", "/b.mp3"}, loopAll: true},
		{name: "empty", paths: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := filled(tt.paths...)
			if tt.loopAll {
				q.LoopQueue()
			}
			for i := 0; i < tt.advance; i++ {
				q.MoveNext()
			}
			q.LoopSong()

			before, beforeOK := q.Peek()
			items := q.Items()
			for i := 0; i < 5; i++ {
				q.MoveNext()
				after, afterOK := q.Peek()
				assert.Equal(t, beforeOK, afterOK)
				assert.Equal(t, before, after)
			}
			assert.Equal(t, items, q.Items())
		})
	}
}

func TestMoveNextLoopAllCycles(t *testing.T) {
	for n := 1; n <= 5; n++ {
		paths := make([]string, n)
		for i := range paths {
			paths[i] = "/track/" + string(rune('a'+i)) + ".mp3"
		}
		q := filled(paths...)
		q.LoopQueue()

		for i := 0; i < n; i++ {
			head, ok := q.Peek()
			require.True(t, ok)
			assert.Equal(t, paths[i], head)
			q.MoveNext()
			assert.Equal(t, n, q.Len(), "loop-all never shrinks the queue")
		}

		head, _ := q.Peek()
		assert.Equal(t, paths[0], head, "back at the first entry after %d calls", n)
	}
}

func TestMoveNextNoRepeatConsumes(t *testing.T) {
	paths := []string{"/path/1.mp3", "/path/2.mp3", "/path/3.mp3", "/path/4.mp3"}
	q := filled(paths...)

	for i := range paths {
		require.False(t, q.IsEmpty())
		head, _ := q.Peek()
		assert.Equal(t, paths[i], head)

		q.MoveNext()
		assert.Equal(t, len(paths)-i-1, q.Len())
	}

	assert.True(t, q.IsEmpty())
	_, ok := q.Peek()
	assert.False(t, ok)
}

func TestMoveNextAfterLoopAllWrapsCursorOnRemoval(t *testing.T) {
	q := filled("/a.mp3", "/b.mp3", "/c.mp3")
	q.LoopQueue()
	q.MoveNext()
	q.MoveNext() // cursor on /c.mp3
	q.LoopQueue()

	q.MoveNext()

	assert.Equal(t, []string{"/a.mp3", "/b.mp3"}, q.Items())
	assert.Equal(t, 0, q.Index(), "cursor resets once it falls off the end")
	head, _ := q.Peek()
	assert.Equal(t, "/a.mp3", head)
}

func TestRemoveCurrent(t *testing.T) {
	q := filled("/a.mp3", "/b.mp3")
	q.LoopSong()
	q.LoopQueue()

	q.RemoveCurrent()

	assert.Equal(t, []string{"/b.mp3"}, q.Items())
	assert.True(t, q.LoopingSong(), "repeat flags survive a removal")
	assert.True(t, q.LoopingQueue())
}

func TestRemoveCurrentAtTailKeepsCursorValid(t *testing.T) {
	q := filled("/a.mp3", "/b.mp3", "/c.mp3")
	q.LoopQueue()
	q.MoveNext()
	q.MoveNext()

	q.RemoveCurrent()

	head, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, "/a.mp3", head)
}

func TestRemoveCurrentOnEmptyQueue(t *testing.T) {
	q := New()

	assert.NotPanics(t, q.RemoveCurrent)
	assert.True(t, q.IsEmpty())
}

func TestClear(t *testing.T) {
	q := filled("/a.mp3", "/b.mp3", "/c.mp3")
	q.LoopQueue()
	q.MoveNext()
	q.LoopSong()

	q.Clear()

	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, q.Index())
	assert.False(t, q.LoopingSong())
	assert.False(t, q.LoopingQueue())
}

func TestLoopToggles(t *testing.T) {
	q := New()

	q.LoopSong()
	assert.True(t, q.LoopingSong())
	assert.Equal(t, RepeatOne, q.Repeat())

	q.LoopQueue()
	assert.True(t, q.LoopingQueue())
	assert.Equal(t, RepeatOne, q.Repeat(), "loop-current takes precedence")

	q.LoopSong()
	assert.Equal(t, RepeatAll, q.Repeat())

	q.LoopQueue()
	assert.Equal(t, RepeatOff, q.Repeat())
}

func TestRepeatModeString(t *testing.T) {
	assert.Equal(t, "off", RepeatOff.String())
	assert.Equal(t, "one", RepeatOne.String())
	assert.Equal(t, "all", RepeatAll.String())
}

func TestItemsReturnsCopy(t *testing.T) {
	q := filled("/a.mp3")

	items := q.Items()
	items[0] = "/changed.mp3"

	head, _ := q.Peek()
	assert.Equal(t, "/a.mp3", head)
}
