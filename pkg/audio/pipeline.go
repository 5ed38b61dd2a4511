package audio

import (
	"sync"
	"time"
)

// Pipeline composes the stereo-to-mono mix and sample-rate conversion a
// transport frame goes through on its way to transcription, and keeps
// running throughput stats. Safe for concurrent use.
type Pipeline struct {
	targetRate int

	mu      sync.Mutex
	packets uint64
	elapsed time.Duration
}

// PipelineStats is a snapshot of a [Pipeline]'s counters.
type PipelineStats struct {
	// PacketsProcessed counts the frames run through Process.
	PacketsProcessed uint64

	// AverageLatency is the mean per-frame conversion time. Zero when no
	// frame has been processed yet.
	AverageLatency time.Duration
}

// NewPipeline creates a Pipeline converting frames to mono PCM at
// targetRate Hz.
func NewPipeline(targetRate int) *Pipeline {
	return &Pipeline{targetRate: targetRate}
}

// Process converts frame to mono PCM at the target rate. Mono frames skip
// the mix; frames already at the target rate (or without one) skip the
// resample.
func (p *Pipeline) Process(frame Frame) []byte {
	start := time.Now()
	pcm := frame.Data
	if frame.Channels == 2 {
		pcm = StereoToMono(pcm)
	}
	if frame.SampleRate != p.targetRate && frame.SampleRate > 0 {
		pcm = ResampleMono16(pcm, frame.SampleRate, p.targetRate)
	}

	p.mu.Lock()
	p.packets++
	p.elapsed += time.Since(start)
	p.mu.Unlock()
	return pcm
}

// Stats returns a snapshot of the pipeline's counters.
func (p *Pipeline) Stats() PipelineStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := PipelineStats{PacketsProcessed: p.packets}
	if p.packets > 0 {
		s.AverageLatency = p.elapsed / time.Duration(p.packets)
	}
	return s
}
