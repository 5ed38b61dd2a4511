package audio

import (
	"testing"
	"time"
)

func TestRingBufferDropOldest(t *testing.T) {
	t.Parallel()

	rb := NewRingBuffer(3)
	for i := range 5 {
		rb.Push([]byte{byte(i)})
	}

	if got := rb.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
	frames := rb.All()
	want := []byte{2, 3, 4}
	for i, f := range frames {
		if f.Data[0] != want[i] {
			t.Errorf("All()[%d] = %d, want %d", i, f.Data[0], want[i])
		}
	}
}

func TestRingBufferChronologicalOrder(t *testing.T) {
	t.Parallel()

	rb := NewRingBuffer(4)
	base := time.Now()
	for i := range 4 {
		rb.PushAt([]byte{byte(i)}, base.Add(time.Duration(i)*time.Millisecond))
	}

	frames := rb.All()
	for i := 1; i < len(frames); i++ {
		if frames[i].Timestamp.Before(frames[i-1].Timestamp) {
			t.Fatalf("frames out of order at index %d", i)
		}
	}
}

func TestRingBufferZeroCapacity(t *testing.T) {
	t.Parallel()

	rb := NewRingBuffer(0)
	rb.Push([]byte{1})
	rb.Push([]byte{2})

	if got := rb.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
	if got := rb.All(); len(got) != 0 {
		t.Errorf("All() returned %d frames, want 0", len(got))
	}
}

func TestRingBufferWindow(t *testing.T) {
	t.Parallel()

	rb := NewRingBuffer(10)
	now := time.Now()
	// Five old frames outside the age window, five recent inside it.
	for i := range 5 {
		rb.PushAt([]byte{byte(i)}, now.Add(-10*time.Second))
	}
	for i := 5; i < 10; i++ {
		rb.PushAt([]byte{byte(i)}, now.Add(-time.Duration(10-i)*100*time.Millisecond))
	}

	t.Run("age filter", func(t *testing.T) {
		frames := rb.Window(WindowOptions{MaxAge: 2 * time.Second})
		if len(frames) != 5 {
			t.Fatalf("got %d frames, want 5", len(frames))
		}
		if frames[0].Data[0] != 5 {
			t.Errorf("first frame = %d, want 5", frames[0].Data[0])
		}
	})

	t.Run("packet cap keeps most recent", func(t *testing.T) {
		frames := rb.Window(WindowOptions{MaxAge: 2 * time.Second, MaxPackets: 2})
		if len(frames) != 2 {
			t.Fatalf("got %d frames, want 2", len(frames))
		}
		if frames[0].Data[0] != 8 || frames[1].Data[0] != 9 {
			t.Errorf("got frames [%d %d], want [8 9]", frames[0].Data[0], frames[1].Data[0])
		}
	})

	t.Run("no limits returns all", func(t *testing.T) {
		if got := rb.Window(WindowOptions{}); len(got) != 10 {
			t.Errorf("got %d frames, want 10", len(got))
		}
	})
}

func TestRingBufferClear(t *testing.T) {
	t.Parallel()

	rb := NewRingBuffer(4)
	rb.Push([]byte{1})
	rb.Push([]byte{2})
	rb.Clear()

	if got := rb.Len(); got != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", got)
	}
	if got := rb.Cap(); got != 4 {
		t.Fatalf("Cap() after Clear = %d, want 4", got)
	}
	rb.Push([]byte{3})
	if got := rb.All(); len(got) != 1 || got[0].Data[0] != 3 {
		t.Errorf("buffer unusable after Clear: %v", got)
	}
}

func TestNewRingBufferForDuration(t *testing.T) {
	t.Parallel()

	rb := NewRingBufferForDuration(3*time.Second, 20*time.Millisecond)
	if got := rb.Cap(); got != 150 {
		t.Errorf("Cap() = %d, want 150", got)
	}

	if got := NewRingBufferForDuration(time.Second, 0).Cap(); got != 0 {
		t.Errorf("Cap() with zero frame duration = %d, want 0", got)
	}
}
