package registry_test

import (
	"math"
	"testing"

	"github.com/voxsentry/voxsentry/internal/registry"
)

// speechLike builds one second of audio alternating loud tone bursts with
// near-silent gaps, on top of a constant noise floor.
func speechLike(sampleRate int, noiseAmp, toneAmp float64) []float32 {
	samples := make([]float32, sampleRate)
	for i := range samples {
		v := noiseAmp * math.Sin(2*math.Pi*3100*float64(i)/float64(sampleRate))
		// 100 ms on, 100 ms off
		if (i/(sampleRate/10))%2 == 0 {
			v += toneAmp * math.Sin(2*math.Pi*220*float64(i)/float64(sampleRate))
		}
		samples[i] = float32(v)
	}
	return samples
}

func TestAnalyzeEnvironment_CleanSignal(t *testing.T) {
	t.Parallel()
	env := registry.AnalyzeEnvironment(speechLike(16000, 0.0005, 0.5), 16000)
	if env.Noisy {
		t.Errorf("clean signal flagged noisy: %+v", env)
	}
	if env.SNRDB < 20 {
		t.Errorf("SNR = %.1f dB, want well above 20 for a clean signal", env.SNRDB)
	}
}

func TestAnalyzeEnvironment_NoisyChannel(t *testing.T) {
	t.Parallel()
	// Noise nearly as loud as the tone: SNR collapses.
	env := registry.AnalyzeEnvironment(speechLike(16000, 0.4, 0.5), 16000)
	if !env.Noisy {
		t.Errorf("degraded channel not flagged noisy: %+v", env)
	}
}

func TestAnalyzeEnvironment_TooShort(t *testing.T) {
	t.Parallel()
	env := registry.AnalyzeEnvironment(make([]float32, 10), 16000)
	if env.Noisy {
		t.Errorf("unmeasurable buffer flagged noisy: %+v", env)
	}
}
