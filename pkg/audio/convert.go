package audio

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// FormatConverter converts Frames to a target format. It logs a warning on
// the first format mismatch and validates PCM alignment. Create one per
// stream; not designed for shared use across goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert converts a frame to the target format. If the source format already
// matches the target, the frame is returned unchanged. Conversion order:
// channel mix first, then resample, so stereo input is never resampled twice.
func (c *FormatConverter) Convert(frame Frame) Frame {
	// Odd byte count cannot be int16 PCM.
	if len(frame.Data)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("format converter: odd byte count in PCM data, dropping frame",
				"bytes", len(frame.Data),
				"sample_rate", frame.SampleRate,
				"channels", frame.Channels,
			)
		})
		return Frame{SampleRate: c.Target.SampleRate, Channels: c.Target.Channels, Timestamp: frame.Timestamp}
	}

	if frame.SampleRate == c.Target.SampleRate && frame.Channels == c.Target.Channels {
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch, converting",
			"from", formatString(frame.SampleRate, frame.Channels),
			"to", formatString(c.Target.SampleRate, c.Target.Channels),
		)
	})

	pcm := frame.Data
	channels := frame.Channels
	rate := frame.SampleRate

	if channels != c.Target.Channels {
		pcm = MixChannels(pcm, channels, c.Target.Channels)
		// MixChannels passes unsupported combinations through unchanged.
		if converted := channels == 1 && c.Target.Channels == 2 || channels == 2 && c.Target.Channels == 1; converted {
			channels = c.Target.Channels
		}
	}

	if rate != c.Target.SampleRate {
		if channels == 2 {
			pcm = ResampleStereo16(pcm, rate, c.Target.SampleRate)
		} else {
			pcm = ResampleMono16(pcm, rate, c.Target.SampleRate)
		}
		rate = c.Target.SampleRate
	}

	return Frame{Data: pcm, SampleRate: rate, Channels: channels, Timestamp: frame.Timestamp}
}

// MixChannels converts between channel layouts. Stereo to mono averages each
// L/R pair; mono to stereo duplicates each sample. Identity when the counts
// match. Any other combination is passed through unchanged, a documented
// limitation rather than an error.
func MixChannels(pcm []byte, from, to int) []byte {
	switch {
	case from == to:
		return pcm
	case from == 2 && to == 1:
		return StereoToMono(pcm)
	case from == 1 && to == 2:
		return MonoToStereo(pcm)
	default:
		return pcm
	}
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		lo, hi := pcm[i], pcm[i+1]
		j := i * 2
		out[j] = lo
		out[j+1] = hi
		out[j+2] = lo
		out[j+3] = hi
	}
	return out
}

// StereoToMono averages each L+R pair (4 bytes) to produce mono output.
// The average rounds toward negative infinity and is clamped to the int16
// range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		// Arithmetic shift floors for negative sums, unlike /2.
		avg := clampInt16(int32((l + r) >> 1))

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. For each output index the source position is
// interpolated between the two neighbouring samples, rounded to nearest and
// clamped. Source positions past either end clamp to the edge sample.
// Identity when the rates match.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	ratio := float64(dstRate) / float64(srcRate)
	dstSamples := int(math.Round(float64(srcSamples) * ratio))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	for i := range dstSamples {
		s := interpolateAt(pcm, srcSamples, 1, 0, float64(i)/ratio)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// ResampleStereo16 resamples 16-bit interleaved stereo PCM from srcRate to
// dstRate using per-channel linear interpolation. Identity when the rates
// match.
func ResampleStereo16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 4 {
		return pcm
	}
	srcFrames := len(pcm) / 4
	ratio := float64(dstRate) / float64(srcRate)
	dstFrames := int(math.Round(float64(srcFrames) * ratio))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*4)
	for i := range dstFrames {
		pos := float64(i) / ratio
		l := interpolateAt(pcm, srcFrames, 2, 0, pos)
		r := interpolateAt(pcm, srcFrames, 2, 1, pos)
		out[i*4] = byte(l)
		out[i*4+1] = byte(l >> 8)
		out[i*4+2] = byte(r)
		out[i*4+3] = byte(r >> 8)
	}
	return out
}

// interpolateAt linearly interpolates the sample at fractional position pos
// within pcm, treating pcm as frames of stride int16 samples and reading
// channel offset within each frame. Positions outside [0, frames-1] clamp to
// the nearest edge sample.
func interpolateAt(pcm []byte, frames, stride, offset int, pos float64) int16 {
	idx := int(math.Floor(pos))
	frac := pos - float64(idx)

	s0 := sampleAt(pcm, frames, stride, offset, idx)
	s1 := sampleAt(pcm, frames, stride, offset, idx+1)

	v := math.Round(float64(s0)*(1-frac) + float64(s1)*frac)
	return clampInt16(int32(v))
}

// sampleAt reads the int16 sample at frame idx, clamping idx to the valid
// range.
func sampleAt(pcm []byte, frames, stride, offset, idx int) int16 {
	if idx < 0 {
		idx = 0
	}
	if idx > frames-1 {
		idx = frames - 1
	}
	p := (idx*stride + offset) * 2
	return int16(pcm[p]) | int16(pcm[p+1])<<8
}

func clampInt16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// formatString renders a rate and channel count, e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
