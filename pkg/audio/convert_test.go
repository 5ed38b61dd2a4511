package audio

import (
	"bytes"
	"testing"
)

func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

func samples16(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	return out
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []int16
		want []int16
	}{
		{"positive peak", []int16{32767, 32767}, []int16{32767}},
		{"negative average", []int16{-1000, -2000}, []int16{-1500}},
		{"floor rounding on odd negative sum", []int16{-1, 0}, []int16{-1}},
		{"multiple pairs", []int16{100, 200, -100, -200}, []int16{150, -150}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := samples16(StereoToMono(pcm16(tt.in...)))
			if len(got) != len(tt.want) {
				t.Fatalf("got %d samples, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("sample %d = %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestMixChannelsIdentityAndPassthrough(t *testing.T) {
	t.Parallel()

	mono := pcm16(1, 2, 3)
	if got := MixChannels(mono, 1, 1); !bytes.Equal(got, mono) {
		t.Error("mono to mono should be identity")
	}
	// 4-channel input is unsupported and must pass through untouched.
	quad := pcm16(1, 2, 3, 4)
	if got := MixChannels(quad, 4, 1); !bytes.Equal(got, quad) {
		t.Error("unsupported channel combination should pass through")
	}
}

func TestMonoToStereo(t *testing.T) {
	t.Parallel()

	got := samples16(MonoToStereo(pcm16(5, -7)))
	want := []int16{5, 5, -7, -7}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()

	t.Run("identity on equal rates", func(t *testing.T) {
		in := pcm16(1, 2, 3)
		if got := ResampleMono16(in, 48000, 48000); !bytes.Equal(got, in) {
			t.Error("equal rates should be identity")
		}
	})

	t.Run("48k to 16k sample count", func(t *testing.T) {
		in := make([]int16, 48)
		for i := range in {
			in[i] = int16(i)
		}
		out := ResampleMono16(pcm16(in...), 48000, 16000)
		if got := len(out) / 2; got != 16 {
			t.Fatalf("got %d samples, want 16", got)
		}
	})

	t.Run("monotonic ramp stays monotonic", func(t *testing.T) {
		in := make([]int16, 48)
		for i := range in {
			in[i] = int16(i * 100)
		}
		out := samples16(ResampleMono16(pcm16(in...), 48000, 16000))
		for i := 1; i < len(out); i++ {
			if out[i] < out[i-1] {
				t.Fatalf("output not monotonic at index %d: %d < %d", i, out[i], out[i-1])
			}
		}
	})

	t.Run("upsampling interpolates between neighbours", func(t *testing.T) {
		out := samples16(ResampleMono16(pcm16(0, 100), 16000, 32000))
		if len(out) != 4 {
			t.Fatalf("got %d samples, want 4", len(out))
		}
		if out[0] != 0 {
			t.Errorf("sample 0 = %d, want 0", out[0])
		}
		if out[1] != 50 {
			t.Errorf("sample 1 = %d, want 50", out[1])
		}
		// Positions past the last source sample clamp to the edge.
		if out[3] != 100 {
			t.Errorf("sample 3 = %d, want 100", out[3])
		}
	})
}

func TestFormatConverter(t *testing.T) {
	t.Parallel()

	t.Run("matching format is untouched", func(t *testing.T) {
		conv := FormatConverter{Target: Format{SampleRate: 48000, Channels: 2}}
		in := Frame{Data: pcm16(1, 2), SampleRate: 48000, Channels: 2}
		out := conv.Convert(in)
		if !bytes.Equal(out.Data, in.Data) {
			t.Error("matching format should be returned unchanged")
		}
	})

	t.Run("stereo 48k to mono 16k", func(t *testing.T) {
		conv := FormatConverter{Target: Format{SampleRate: 16000, Channels: 1}}
		in := make([]int16, 96) // 48 stereo frames at 48kHz
		out := conv.Convert(Frame{Data: pcm16(in...), SampleRate: 48000, Channels: 2})
		if out.SampleRate != 16000 || out.Channels != 1 {
			t.Fatalf("got %dHz %dch, want 16000Hz 1ch", out.SampleRate, out.Channels)
		}
		if got := len(out.Data) / 2; got != 16 {
			t.Errorf("got %d samples, want 16", got)
		}
	})

	t.Run("odd byte count is dropped", func(t *testing.T) {
		conv := FormatConverter{Target: Format{SampleRate: 16000, Channels: 1}}
		out := conv.Convert(Frame{Data: []byte{1, 2, 3}, SampleRate: 48000, Channels: 2})
		if len(out.Data) != 0 {
			t.Errorf("corrupt frame should yield empty data, got %d bytes", len(out.Data))
		}
	})
}
