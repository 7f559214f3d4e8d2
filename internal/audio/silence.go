package audio

import "math"

const (
	silenceWindowMs = 10
	// -40 dBFS, the silencedetect threshold used for recorded prompts
	silenceThreshold = 0.01
)

type SilenceInfo struct {
	HasTrailingSilence bool    `json:"has_trailing_silence"`
	SilenceDuration    float64 `json:"silence_duration_ms"` // в миллисекундах
	TotalDuration      float64 `json:"total_duration"`
}

// DetectTrailingSilence measures the silent tail of p in 10 ms windows,
// walking back from the end until a window rises above -40 dBFS.
func DetectTrailingSilence(p *PCM, minSilenceMs float64) SilenceInfo {
	info := SilenceInfo{TotalDuration: p.Duration()}
	if p.SampleRate <= 0 {
		return info
	}

	mono := ToFloat(p.Mono())
	window := p.SampleRate * silenceWindowMs / 1000
	if window <= 0 {
		window = 1
	}

	end := len(mono)
	for end > 0 {
		start := max(end-window, 0)
		if RMS(mono[start:end]) >= silenceThreshold {
			break
		}
		end = start
	}

	silent := len(mono) - end
	info.SilenceDuration = math.Round(float64(silent)*1000/float64(p.SampleRate)*10) / 10
	info.HasTrailingSilence = info.SilenceDuration >= minSilenceMs
	return info
}
