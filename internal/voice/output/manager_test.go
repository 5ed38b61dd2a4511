package output

import (
	"sync"
	"testing"
	"time"

	"github.com/parley-voice/parley/pkg/audio"
	"github.com/parley-voice/parley/pkg/audio/mock"
)

func testSegment(text string) Segment {
	return Segment{
		PCM:         make([]byte, 640),
		Format:      audio.Format{SampleRate: 16000, Channels: 1},
		Text:        text,
		RequestedAt: time.Now().Add(-50 * time.Millisecond),
	}
}

func TestQueueFIFO(t *testing.T) {
	t.Parallel()

	q := NewPlaybackQueue()
	q.Enqueue(testSegment("one"))
	q.Enqueue(testSegment("two"))

	if got := q.Len(); got != 2 {
		t.Fatalf("Len = %d, want 2", got)
	}
	first, ok := q.Dequeue()
	if !ok || first.Text != "one" {
		t.Errorf("first dequeue = %q, %v", first.Text, ok)
	}
	second, ok := q.Dequeue()
	if !ok || second.Text != "two" {
		t.Errorf("second dequeue = %q, %v", second.Text, ok)
	}
	if _, ok := q.Dequeue(); ok {
		t.Error("dequeue from empty queue should report false")
	}

	q.Enqueue(testSegment("three"))
	q.Clear()
	if got := q.Len(); got != 0 {
		t.Errorf("Len after Clear = %d, want 0", got)
	}
}

func TestManagerPlayWithoutPlayerIsHardError(t *testing.T) {
	t.Parallel()

	m := NewManager(ManagerConfig{})
	if err := m.Play("chan-1", testSegment("hi")); err == nil {
		t.Fatal("expected hard error for channel with no attached player")
	}
}

func TestManagerPlayOrEnqueue(t *testing.T) {
	t.Parallel()

	player := &mock.Player{}
	m := NewManager(ManagerConfig{})
	m.AttachPlayer("chan-1", player)

	if err := m.Play("chan-1", testSegment("first")); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if !m.IsPlaying("chan-1") {
		t.Error("channel should be playing")
	}
	if got := len(player.PlayCalls); got != 1 {
		t.Fatalf("player calls = %d, want 1", got)
	}

	// Second segment queues behind the first.
	if err := m.Play("chan-1", testSegment("second")); err != nil {
		t.Fatalf("Play (second): %v", err)
	}
	if got := len(player.PlayCalls); got != 1 {
		t.Errorf("player calls = %d, want still 1", got)
	}
	if got := m.QueueLen("chan-1"); got != 1 {
		t.Errorf("queue length = %d, want 1", got)
	}
}

func TestManagerNaturalCompletionChaining(t *testing.T) {
	t.Parallel()

	player := &mock.Player{}
	m := NewManager(ManagerConfig{})
	m.AttachPlayer("chan-1", player)

	var mu sync.Mutex
	var finished []string
	m.OnPlaybackFinished(func(channelID string) {
		mu.Lock()
		finished = append(finished, channelID)
		mu.Unlock()
	})

	if err := m.Play("chan-1", testSegment("first")); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := m.Play("chan-1", testSegment("second")); err != nil {
		t.Fatalf("Play (second): %v", err)
	}

	// First completes naturally: the queued segment starts, no finished
	// event yet.
	player.Finish()
	if got := len(player.PlayCalls); got != 2 {
		t.Fatalf("player calls = %d, want 2", got)
	}
	mu.Lock()
	finCount := len(finished)
	mu.Unlock()
	if finCount != 0 {
		t.Errorf("finished events = %d, want 0 while queue drains", finCount)
	}

	// Second completes: queue empty, channel idle, event fires.
	player.Finish()
	mu.Lock()
	defer mu.Unlock()
	if len(finished) != 1 || finished[0] != "chan-1" {
		t.Errorf("finished events = %v, want [chan-1]", finished)
	}
	if m.IsPlaying("chan-1") {
		t.Error("channel should be idle after final completion")
	}
}

func TestManagerStopClearsQueueWithoutFinishedEvent(t *testing.T) {
	t.Parallel()

	player := &mock.Player{}
	m := NewManager(ManagerConfig{})
	m.AttachPlayer("chan-1", player)

	finishedCount := 0
	m.OnPlaybackFinished(func(string) { finishedCount++ })

	_ = m.Play("chan-1", testSegment("first"))
	_ = m.Play("chan-1", testSegment("second"))

	m.Stop("chan-1")

	if player.CallCountStop == 0 {
		t.Error("player should be stopped")
	}
	if m.IsPlaying("chan-1") {
		t.Error("channel should be idle after Stop")
	}
	if got := m.QueueLen("chan-1"); got != 0 {
		t.Errorf("queue length = %d, want 0", got)
	}
	if finishedCount != 0 {
		t.Errorf("finished events = %d, want 0 for explicit stop", finishedCount)
	}

	// Stop on an unknown channel is a no-op.
	m.Stop("chan-unknown")
}

func TestManagerBargeInStopsAndCounts(t *testing.T) {
	t.Parallel()

	player := &mock.Player{}
	m := NewManager(ManagerConfig{BargeIn: BargeInConfig{
		Enabled:  true,
		Cooldown: time.Nanosecond,
	}})
	m.AttachPlayer("chan-1", player)

	var mu sync.Mutex
	var interruptions []string
	m.OnBargeIn(func(channelID, userID string) {
		mu.Lock()
		interruptions = append(interruptions, channelID+"/"+userID)
		mu.Unlock()
	})

	_ = m.Play("chan-1", testSegment("first"))
	_ = m.Play("chan-1", testSegment("second"))
	time.Sleep(5 * time.Millisecond) // let the nanosecond cooldown lapse

	m.UserSpeechStart("chan-1", "alice")

	mu.Lock()
	defer mu.Unlock()
	if len(interruptions) != 1 || interruptions[0] != "chan-1/alice" {
		t.Fatalf("interruptions = %v", interruptions)
	}
	if player.CallCountStop == 0 {
		t.Error("player should be stopped on barge-in")
	}
	if got := m.QueueLen("chan-1"); got != 0 {
		t.Errorf("queue length after barge-in = %d, want 0", got)
	}
	stats := m.Stats("chan-1")
	if stats.InterruptionCount != 1 {
		t.Errorf("InterruptionCount = %d, want 1", stats.InterruptionCount)
	}
}

func TestManagerStats(t *testing.T) {
	t.Parallel()

	player := &mock.Player{}
	m := NewManager(ManagerConfig{})
	m.AttachPlayer("chan-1", player)

	_ = m.Play("chan-1", testSegment("first"))
	player.Finish()

	stats := m.Stats("chan-1")
	if stats.TotalPlayed != 1 {
		t.Errorf("TotalPlayed = %d, want 1", stats.TotalPlayed)
	}
	if stats.AverageLatency <= 0 {
		t.Errorf("AverageLatency = %v, want > 0", stats.AverageLatency)
	}

	// Unknown channels report zero stats.
	if got := m.Stats("chan-unknown"); got != (Stats{}) {
		t.Errorf("stats for unknown channel = %+v", got)
	}
}

func TestManagerChannelIsolation(t *testing.T) {
	t.Parallel()

	playerA := &mock.Player{}
	playerB := &mock.Player{}
	m := NewManager(ManagerConfig{})
	m.AttachPlayer("chan-a", playerA)
	m.AttachPlayer("chan-b", playerB)

	_ = m.Play("chan-a", testSegment("a"))
	_ = m.Play("chan-b", testSegment("b"))

	m.Stop("chan-a")

	if !m.IsPlaying("chan-b") {
		t.Error("stopping chan-a must not affect chan-b")
	}
	if playerB.CallCountStop != 0 {
		t.Error("chan-b player should not be stopped")
	}
}
