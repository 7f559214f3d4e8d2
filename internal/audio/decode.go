package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Decodable reports whether ReadAudio can decode path.
func Decodable(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".flac", ".mp3":
		return true
	}
	return false
}

// ReadAudio decodes a WAV, FLAC or MP3 file by extension.
func ReadAudio(path string) (*PCM, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".wav" {
		return ReadWAV(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pcm *PCM
	switch ext {
	case ".flac":
		pcm, err = DecodeFLAC(bufio.NewReader(f))
	case ".mp3":
		pcm, err = DecodeMP3(f)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pcm, nil
}

// DecodeFLAC requantizes every frame to 16 bits and interleaves channels.
func DecodeFLAC(r io.Reader) (*PCM, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	info := stream.Info
	pcm := &PCM{
		SampleRate: int(info.SampleRate),
		Channels:   int(info.NChannels),
		BitDepth:   int(info.BitsPerSample),
	}
	if pcm.Channels < 1 {
		return nil, errors.New("invalid channel count")
	}
	if info.NSamples > 0 {
		pcm.Samples = make([]int16, 0, int(info.NSamples)*pcm.Channels)
	}

	shift := pcm.BitDepth - 16
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		n := len(frame.Subframes[0].Samples)
		for i := 0; i < n; i++ {
			for _, sub := range frame.Subframes {
				s := sub.Samples[i]
				if shift > 0 {
					s >>= shift
				} else {
					s <<= -shift
				}
				pcm.Samples = append(pcm.Samples, int16(s))
			}
		}
	}
	return pcm, nil
}

// DecodeMP3 decodes to interleaved 16-bit stereo, the decoder's only output.
func DecodeMP3(r io.Reader) (*PCM, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(d)
	if err != nil {
		return nil, err
	}

	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return &PCM{SampleRate: d.SampleRate(), Channels: 2, BitDepth: 16, Samples: samples}, nil
}

// Transcode decodes src and writes it to dst as mono 16-bit WAV, keeping the
// source sample rate. An existing dst is kept unless overwrite is set.
func Transcode(src, dst string, overwrite bool) (bool, error) {
	if !overwrite {
		if _, err := os.Stat(dst); err == nil {
			return false, nil
		}
	}

	pcm, err := ReadAudio(src)
	if err != nil {
		return false, err
	}

	tmp := dst + ".tmp"
	if err := WriteWAV(tmp, pcm.SampleRate, pcm.Mono()); err != nil {
		os.Remove(tmp)
		return false, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return false, err
	}
	return true, nil
}
