package audio

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

type Metadata struct {
	DurationSec float64 `json:"duration_sec"`
	SampleRate  int     `json:"sample_rate"`
	Channels    int     `json:"channels"`
	BitDepth    int     `json:"bit_depth"`
	FileSize    int64   `json:"file_size"`
	Format      string  `json:"format"`
	// TrailingSilenceMs is the silent tail below -40 dBFS.
	TrailingSilenceMs float64 `json:"trailing_silence_ms"`
}

// GetMetadata decodes path and returns its format description together
// with the decoded audio, so callers measure levels without a second read.
func GetMetadata(path string) (*Metadata, *PCM, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}

	pcm, err := ReadAudio(path)
	if err != nil {
		return nil, nil, err
	}

	m := &Metadata{
		DurationSec: pcm.Duration(),
		SampleRate:  pcm.SampleRate,
		Channels:    pcm.Channels,
		BitDepth:    pcm.BitDepth,
		FileSize:    fi.Size(),
		Format:      strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
	}
	m.TrailingSilenceMs = DetectTrailingSilence(pcm, 0).SilenceDuration
	return m, pcm, nil
}

func (m *Metadata) ToJSON() string {
	b, _ := json.Marshal(m)
	return string(b)
}
