package registry

import (
	"math"
	"sort"
)

// Environment summarises the acoustic channel quality of an audio buffer.
// It is attached to run metadata so operators can judge how much to trust a
// verdict from a noisy line; it is informational only and never weighted
// into the risk score.
type Environment struct {
	// NoiseFloorDB is the estimated background noise level in dBFS.
	NoiseFloorDB float64 `json:"noise_floor_db"`

	// SNRDB is the estimated signal-to-noise ratio in dB.
	SNRDB float64 `json:"snr_db"`

	// Noisy reports whether the channel is degraded enough that sensor
	// thresholds calibrated on clean audio may misfire.
	Noisy bool `json:"noisy"`
}

const (
	envFrameMs = 20
	envHopMs   = 10

	// A channel below 12 dB SNR is considered degraded.
	noisySNRThresholdDB = 12.0
)

// AnalyzeEnvironment estimates the noise floor and SNR of samples by framing
// the buffer into 20 ms windows and comparing RMS energy percentiles: the
// quietest tenth of frames approximates the background noise (speech has
// pauses), the loudest tenth approximates the signal.
//
// Buffers too short for even one frame are reported as clean — there is
// nothing to measure.
func AnalyzeEnvironment(samples []float32, sampleRate int) Environment {
	clean := Environment{NoiseFloorDB: -90, SNRDB: 100}
	if sampleRate <= 0 || len(samples) == 0 {
		return clean
	}

	frameLen := sampleRate * envFrameMs / 1000
	hopLen := sampleRate * envHopMs / 1000
	if frameLen == 0 || hopLen == 0 || len(samples) < frameLen {
		return clean
	}

	numFrames := (len(samples)-frameLen)/hopLen + 1
	rmsDB := make([]float64, 0, numFrames)
	for i := 0; i < numFrames; i++ {
		frame := samples[i*hopLen : i*hopLen+frameLen]
		var sum float64
		for _, s := range frame {
			sum += float64(s) * float64(s)
		}
		rms := math.Sqrt(sum / float64(len(frame)))
		rmsDB = append(rmsDB, 20*math.Log10(rms+1e-10))
	}
	sort.Float64s(rmsDB)

	noiseFloor := percentile(rmsDB, 0.10)
	signal := percentile(rmsDB, 0.90)
	snr := signal - noiseFloor

	return Environment{
		NoiseFloorDB: noiseFloor,
		SNRDB:        snr,
		Noisy:        snr < noisySNRThresholdDB,
	}
}

// percentile returns the p-th percentile (p in [0,1]) of sorted values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
