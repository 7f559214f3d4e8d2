package audio

import (
	"errors"
	"math"
)

// WADASNR estimates speech SNR in dB from the waveform amplitude
// distribution (Kim & Stern). samples are normalized to [-1, 1].
func WADASNR(samples []float64) (float64, error) {
	if len(samples) < 1000 {
		return 0, errors.New("audio too short")
	}

	// adaptive silence threshold at 10% of RMS, clamped
	threshold := RMS(samples) * 0.1
	if threshold < 0.001 {
		threshold = 0.001
	}
	if threshold > 0.01 {
		threshold = 0.01
	}

	var filtered []float64
	for _, s := range samples {
		if math.Abs(s) > threshold {
			filtered = append(filtered, s)
		}
	}

	if len(filtered) < 500 {
		return 0, errors.New("not enough non-silent samples")
	}

	var sumAbs float64
	for _, s := range filtered {
		sumAbs += math.Abs(s)
	}

	meanAbs := sumAbs / float64(len(filtered))
	rms := RMS(filtered)

	if rms < 1e-10 {
		return 0, errors.New("signal too quiet")
	}

	gamma := meanAbs / rms

	diff := gamma - 0.707
	if diff < 0.001 {
		diff = 0.001
	}

	snr := -10 * math.Log10(diff/0.091)

	if snr < 0 {
		snr = 0
	}
	if snr > 50 {
		snr = 50
	}

	return math.Round(snr*10) / 10, nil
}
