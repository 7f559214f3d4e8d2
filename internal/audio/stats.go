package audio

import (
	"encoding/json"
	"math"
)

// Levels are native PCM measurements of a staged file.
type Levels struct {
	RMSDB      float64 `json:"rms_db"`
	PeakDB     float64 `json:"peak_db"`
	DCOffset   float64 `json:"dc_offset"`
	Clipped    int     `json:"clipped_samples"`
	SNRWada    float64 `json:"snr_wada"`
	NoiseLevel string  `json:"noise_level"`
}

// RMS is the root-mean-square amplitude of samples.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSq float64
	for _, s := range samples {
		sumSq += s * s
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}

// GetLevels measures samples (16-bit PCM) in dBFS. Silence reports
// -inf levels as 0 so the result is always storable.
func GetLevels(samples []int16) Levels {
	l := Levels{}
	if len(samples) == 0 {
		l.NoiseLevel = classifyNoise(0)
		return l
	}

	norm := ToFloat(samples)

	var sum, peak float64
	for i, s := range norm {
		sum += s
		if a := math.Abs(s); a > peak {
			peak = a
		}
		if samples[i] == math.MaxInt16 || samples[i] == math.MinInt16 {
			l.Clipped++
		}
	}

	l.DCOffset = sum / float64(len(norm))
	l.RMSDB = toDB(RMS(norm))
	l.PeakDB = toDB(peak)

	if snr, err := WADASNR(norm); err == nil {
		l.SNRWada = snr
	}
	l.NoiseLevel = classifyNoise(l.SNRWada)

	return l
}

func toDB(amp float64) float64 {
	if amp <= 0 {
		return 0
	}
	db := 20 * math.Log10(amp)
	if math.IsNaN(db) || math.IsInf(db, 0) {
		return 0
	}
	return math.Round(db*100) / 100
}

// classifyNoise buckets an SNR estimate
func classifyNoise(snr float64) string {
	if snr >= 25 {
		return "low"
	} else if snr >= 18 {
		return "medium"
	} else if snr >= 10 {
		return "high"
	}
	return "very_high"
}

func (l Levels) ToJSON() string {
	b, err := json.Marshal(l)
	if err != nil {
		return "{}"
	}
	return string(b)
}
