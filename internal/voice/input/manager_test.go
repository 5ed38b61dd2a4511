package input

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/parley-voice/parley/pkg/audio"
	"github.com/parley-voice/parley/pkg/audio/mock"
)

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testFrame() audio.Frame {
	return audio.Frame{
		Data:       make([]byte, 1920),
		SampleRate: 48000,
		Channels:   2,
		Timestamp:  time.Now(),
	}
}

func TestManagerSubscribeIdempotent(t *testing.T) {
	t.Parallel()

	conn := mock.NewConn()
	m := NewManager(ManagerConfig{Conn: conn})
	defer m.Destroy()

	if err := m.Subscribe("alice"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := m.Subscribe("alice"); err != nil {
		t.Fatalf("Subscribe (second): %v", err)
	}
	if got := len(conn.SubscribeCalls); got != 1 {
		t.Errorf("transport subscribe calls = %d, want 1", got)
	}
	if got := len(m.Subscribed()); got != 1 {
		t.Errorf("Subscribed = %d speakers, want 1", got)
	}
}

func TestManagerFramesReachBufferAndCallback(t *testing.T) {
	t.Parallel()

	conn := mock.NewConn()
	m := NewManager(ManagerConfig{Conn: conn})
	defer m.Destroy()

	var mu sync.Mutex
	var gotFrames int
	m.OnAudio(func(userID string, frame audio.Frame) {
		mu.Lock()
		defer mu.Unlock()
		if userID == "alice" {
			gotFrames++
		}
	})

	if err := m.Subscribe("alice"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	for i := 0; i < 3; i++ {
		if !conn.PushFrame("alice", testFrame()) {
			t.Fatalf("PushFrame #%d dropped", i)
		}
	}

	waitFor(t, "audio callbacks", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotFrames == 3
	})
	waitFor(t, "ring buffer fill", func() bool {
		buf := m.Buffer("alice")
		return buf != nil && buf.Len() == 3
	})
	for i, stored := range m.Buffer("alice").All() {
		if got := len(stored.Data); got != 1920 {
			t.Errorf("buffered frame #%d payload = %d bytes, want 1920", i, got)
		}
		if stored.Timestamp.IsZero() {
			t.Errorf("buffered frame #%d has no timestamp", i)
		}
	}
}

func TestManagerStreamEndStopsSpeakerAndUnsubscribes(t *testing.T) {
	t.Parallel()

	conn := mock.NewConn()
	m := NewManager(ManagerConfig{Conn: conn})
	defer m.Destroy()

	if err := m.Subscribe("alice"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	m.Tracker().StartSpeaking("alice", 100)

	conn.EndStream("alice")

	waitFor(t, "auto-unsubscribe on stream end", func() bool {
		return len(m.Subscribed()) == 0
	})
	if m.Tracker().IsSpeaking("alice") {
		t.Error("alice should be stopped after stream end")
	}
}

func TestManagerStreamEndKeepsSubscriptionInAutoMode(t *testing.T) {
	t.Parallel()

	conn := mock.NewConn()
	m := NewManager(ManagerConfig{Conn: conn})
	defer m.Destroy()

	m.SubscribeAll()
	if err := m.Subscribe("alice"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	m.Tracker().StartSpeaking("alice", 100)

	conn.EndStream("alice")

	waitFor(t, "speaker stop", func() bool {
		return !m.Tracker().IsSpeaking("alice")
	})
	// In auto-subscribe mode the subscription itself stays registered.
	if got := len(m.Subscribed()); got != 1 {
		t.Errorf("Subscribed = %d speakers, want 1", got)
	}
}

func TestManagerAutoSubscribeOnSpeakingStart(t *testing.T) {
	t.Parallel()

	conn := mock.NewConn()
	m := NewManager(ManagerConfig{Conn: conn})
	defer m.Destroy()

	m.SubscribeAll()
	conn.EmitSpeaking(audio.SpeakingUpdate{SSRC: 100, UserID: "alice", Speaking: true})

	waitFor(t, "auto subscription", func() bool {
		return len(m.Subscribed()) == 1
	})
	if !m.Tracker().IsSpeaking("alice") {
		t.Error("alice should be marked speaking")
	}
}

func TestManagerStopSubscribeAllKeepsExisting(t *testing.T) {
	t.Parallel()

	conn := mock.NewConn()
	m := NewManager(ManagerConfig{Conn: conn})
	defer m.Destroy()

	m.SubscribeAll()
	conn.EmitSpeaking(audio.SpeakingUpdate{SSRC: 100, UserID: "alice", Speaking: true})
	waitFor(t, "alice auto subscription", func() bool {
		return len(m.Subscribed()) == 1
	})

	m.StopSubscribeAll()

	// Existing subscriptions survive; new speakers are no longer picked up.
	conn.EmitSpeaking(audio.SpeakingUpdate{SSRC: 200, UserID: "bob", Speaking: true})
	time.Sleep(50 * time.Millisecond)
	if got := len(m.Subscribed()); got != 1 {
		t.Errorf("Subscribed = %d speakers, want only alice", got)
	}
	if !m.Tracker().IsSpeaking("bob") {
		t.Error("bob's speaking state is still tracked")
	}
}

func TestManagerErrorIsolation(t *testing.T) {
	t.Parallel()

	conn := mock.NewConn()
	m := NewManager(ManagerConfig{Conn: conn})
	defer m.Destroy()

	var mu sync.Mutex
	var errUsers []string
	m.OnError(func(userID string, err error) {
		mu.Lock()
		errUsers = append(errUsers, userID)
		mu.Unlock()
	})

	if err := m.Subscribe("alice"); err != nil {
		t.Fatalf("Subscribe alice: %v", err)
	}
	if err := m.Subscribe("bob"); err != nil {
		t.Fatalf("Subscribe bob: %v", err)
	}

	conn.PushError("alice", errors.New("stream hiccup"))

	waitFor(t, "error callback", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errUsers) == 1 && errUsers[0] == "alice"
	})

	// Bob's stream is unaffected and still delivers frames.
	if !conn.PushFrame("bob", testFrame()) {
		t.Fatal("bob's frame was dropped")
	}
	waitFor(t, "bob frame delivery", func() bool {
		buf := m.Buffer("bob")
		return buf != nil && buf.Len() == 1
	})
	if got := len(m.Subscribed()); got != 2 {
		t.Errorf("Subscribed = %d speakers, want 2", got)
	}
}

func TestManagerUnsubscribeWhenNotSubscribed(t *testing.T) {
	t.Parallel()

	conn := mock.NewConn()
	m := NewManager(ManagerConfig{Conn: conn})
	defer m.Destroy()

	m.Unsubscribe("nobody")
	if got := len(conn.UnsubscribeCalls); got != 0 {
		t.Errorf("transport unsubscribe calls = %d, want 0", got)
	}
}

func TestManagerDestroyIdempotent(t *testing.T) {
	t.Parallel()

	conn := mock.NewConn()
	m := NewManager(ManagerConfig{Conn: conn})

	if err := m.Subscribe("alice"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	m.Destroy()
	m.Destroy()

	if got := len(m.Subscribed()); got != 0 {
		t.Errorf("Subscribed after destroy = %d, want 0", got)
	}
	if err := m.Subscribe("bob"); err == nil {
		t.Error("Subscribe after destroy should fail")
	}
}
