package stt

import (
	"log/slog"
	"sync"
	"time"
)

// UnknownSpeaker is the sentinel identity assigned to transcripts that
// arrive without speaker attribution, so no event is ever dropped for lack
// of a speaker id.
const UnknownSpeaker = "unknown"

const (
	defaultFlushTimeout  = 2 * time.Second
	defaultMaxBufferSize = 1000
	defaultHistoryLimit  = 200
)

// Utterance is an aggregated, speaker-attributed span of transcribed text
// bounded by finality, timeout, or buffer-size flush.
type Utterance struct {
	SpeakerID  string
	Text       string
	Confidence float64
	StartTime  time.Time
	EndTime    time.Time
	IsFinal    bool
}

// TurnEntry is one entry of the bounded conversation history.
type TurnEntry struct {
	SpeakerID string
	Text      string
	Timestamp time.Time
}

// utteranceBuffer holds the latest cumulative partial for one speaker.
// Each new partial replaces the stored text; startTime marks when the
// utterance, not the latest partial, began.
type utteranceBuffer struct {
	text       string
	confidence float64
	startTime  time.Time
	timer      *time.Timer
	gen        uint64
}

// AggregatorConfig configures an [Aggregator].
type AggregatorConfig struct {
	// FlushTimeout is how long a partial may sit without updates before it
	// is flushed as a complete utterance. Defaults to 2 seconds.
	FlushTimeout time.Duration

	// MaxBufferSize is the text length above which a partial forces an
	// immediate flush instead of arming a timer. Defaults to 1000.
	MaxBufferSize int

	// MinConfidence is the floor below which events are dropped entirely.
	MinConfidence float64

	// HistoryLimit bounds the conversation history. Defaults to 200.
	HistoryLimit int

	// Logger is the slog logger. Defaults to slog.Default().
	Logger *slog.Logger
}

// Aggregator merges per-speaker streams of cumulative partial transcripts
// into complete utterances. Providers are assumed to emit cumulative
// partials (each partial carries the whole utterance so far), so a new
// partial replaces the buffered text rather than appending to it.
//
// All methods are safe for concurrent use.
type Aggregator struct {
	flushTimeout  time.Duration
	maxBufferSize int
	minConfidence float64
	historyLimit  int
	logger        *slog.Logger

	mu        sync.Mutex
	buffers   map[string]*utteranceBuffer
	history   []TurnEntry
	nextGen   uint64
	destroyed bool

	onUtterance func(u Utterance)
	onTurn      func(entry TurnEntry)
	onOverlap   func(speakerIDs []string)
}

// NewAggregator creates an Aggregator. Call [Aggregator.Destroy] when done.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	flushTimeout := cfg.FlushTimeout
	if flushTimeout <= 0 {
		flushTimeout = defaultFlushTimeout
	}
	maxBufferSize := cfg.MaxBufferSize
	if maxBufferSize <= 0 {
		maxBufferSize = defaultMaxBufferSize
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		flushTimeout:  flushTimeout,
		maxBufferSize: maxBufferSize,
		minConfidence: cfg.MinConfidence,
		historyLimit:  historyLimit,
		logger:        logger,
		buffers:       make(map[string]*utteranceBuffer),
	}
}

// OnUtterance registers the callback invoked for every flushed utterance.
func (a *Aggregator) OnUtterance(cb func(u Utterance)) {
	a.mu.Lock()
	a.onUtterance = cb
	a.mu.Unlock()
}

// OnTurn registers the callback invoked for every conversation history
// entry appended by a flush.
func (a *Aggregator) OnTurn(cb func(entry TurnEntry)) {
	a.mu.Lock()
	a.onTurn = cb
	a.mu.Unlock()
}

// OnOverlap registers the callback invoked when more than one speaker
// holds a live partial buffer at the same time. It may fire repeatedly
// while the overlap persists.
func (a *Aggregator) OnOverlap(cb func(speakerIDs []string)) {
	a.mu.Lock()
	a.onOverlap = cb
	a.mu.Unlock()
}

// HandleTranscript feeds one speaker-attributed transcript event into the
// aggregation state machine. Wire it to [Manager.OnTranscript].
func (a *Aggregator) HandleTranscript(ev TranscriptionEvent) {
	speakerID := ev.SpeakerID
	if speakerID == "" {
		speakerID = UnknownSpeaker
	}

	a.mu.Lock()
	if a.destroyed || ev.Confidence < a.minConfidence {
		a.mu.Unlock()
		return
	}

	if ev.IsFinal {
		a.flushFinalLocked(speakerID, ev)
		return // flushFinalLocked unlocks
	}
	a.handlePartialLocked(speakerID, ev)
}

// handlePartialLocked processes a non-final event. Called with a.mu held;
// unlocks before invoking callbacks.
func (a *Aggregator) handlePartialLocked(speakerID string, ev TranscriptionEvent) {
	buf, ok := a.buffers[speakerID]
	if !ok {
		buf = &utteranceBuffer{startTime: time.Now()}
		a.buffers[speakerID] = buf
	}
	if buf.timer != nil {
		buf.timer.Stop()
		buf.timer = nil
	}
	buf.text = ev.Text
	buf.confidence = ev.Confidence

	if len(buf.text) > a.maxBufferSize {
		a.flushLocked(speakerID, buf, false, nil)
		return // flushLocked unlocks
	}

	a.nextGen++
	gen := a.nextGen
	buf.gen = gen
	buf.timer = time.AfterFunc(a.flushTimeout, func() {
		a.flushTimerFired(speakerID, gen)
	})

	var overlapping []string
	if len(a.buffers) > 1 {
		overlapping = make([]string, 0, len(a.buffers))
		for id := range a.buffers {
			overlapping = append(overlapping, id)
		}
	}
	onOverlap := a.onOverlap
	a.mu.Unlock()

	if overlapping != nil && onOverlap != nil {
		onOverlap(overlapping)
	}
}

// flushFinalLocked flushes on a final event using the event's own text and
// confidence, creating a transient buffer when none exists so the flush
// still emits. Called with a.mu held; unlocks before invoking callbacks.
func (a *Aggregator) flushFinalLocked(speakerID string, ev TranscriptionEvent) {
	buf, ok := a.buffers[speakerID]
	if !ok {
		buf = &utteranceBuffer{startTime: time.Now()}
		a.buffers[speakerID] = buf
	}
	buf.text = ev.Text
	buf.confidence = ev.Confidence
	a.flushLocked(speakerID, buf, true, nil)
}

// flushTimerFired flushes a speaker's buffer when its flush timer elapses.
// The generation guard makes stale timers (replaced or already flushed
// buffers, or a destroyed aggregator) no-ops.
func (a *Aggregator) flushTimerFired(speakerID string, gen uint64) {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return
	}
	buf, ok := a.buffers[speakerID]
	if !ok || buf.gen != gen {
		a.mu.Unlock()
		return
	}
	a.flushLocked(speakerID, buf, false, nil)
}

// flushLocked removes the buffer, appends to the bounded history, and
// emits the utterance and turn events. Called with a.mu held; unlocks
// before invoking callbacks. When events is non-nil the emissions are
// appended to it instead of being invoked (used by Flush to emit after a
// single critical section).
func (a *Aggregator) flushLocked(speakerID string, buf *utteranceBuffer, isFinal bool, events *[]func()) {
	if buf.timer != nil {
		buf.timer.Stop()
		buf.timer = nil
	}
	delete(a.buffers, speakerID)

	endTime := time.Now()
	u := Utterance{
		SpeakerID:  speakerID,
		Text:       buf.text,
		Confidence: buf.confidence,
		StartTime:  buf.startTime,
		EndTime:    endTime,
		IsFinal:    isFinal,
	}
	entry := TurnEntry{SpeakerID: speakerID, Text: buf.text, Timestamp: endTime}
	a.history = append(a.history, entry)
	if len(a.history) > a.historyLimit {
		a.history = a.history[len(a.history)-a.historyLimit:]
	}

	onUtterance := a.onUtterance
	onTurn := a.onTurn
	emit := func() {
		if onUtterance != nil {
			onUtterance(u)
		}
		if onTurn != nil {
			onTurn(entry)
		}
	}

	if events != nil {
		*events = append(*events, emit)
		return
	}
	a.mu.Unlock()
	emit()
}

// Flush force-flushes every pending buffer as a non-final utterance and
// clears all timers. Used on shutdown.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	var events []func()
	for speakerID, buf := range a.buffers {
		a.flushLocked(speakerID, buf, false, &events)
	}
	a.mu.Unlock()

	for _, emit := range events {
		emit()
	}
}

// ConversationHistory returns the most recent limit history entries in
// oldest-first order. A non-positive limit returns the full history.
func (a *Aggregator) ConversationHistory(limit int) []TurnEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	entries := a.history
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]TurnEntry, len(entries))
	copy(out, entries)
	return out
}

// PendingSpeakers returns the speakers that currently hold a live buffer.
func (a *Aggregator) PendingSpeakers() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.buffers))
	for id := range a.buffers {
		ids = append(ids, id)
	}
	return ids
}

// Destroy clears all buffers and timers without flushing. Idempotent; a
// timer firing after Destroy is a no-op.
func (a *Aggregator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return
	}
	a.destroyed = true
	for _, buf := range a.buffers {
		if buf.timer != nil {
			buf.timer.Stop()
		}
	}
	a.buffers = make(map[string]*utteranceBuffer)
	a.onUtterance = nil
	a.onTurn = nil
	a.onOverlap = nil
}
