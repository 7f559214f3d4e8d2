package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	formatPCM        = 1
	formatExtensible = 0xFFFE

	maxFmtSize = 1 << 10
)

var ErrNotWAV = errors.New("not a valid WAV file")

// PCM is decoded WAV audio as interleaved 16-bit samples. Sources with other
// bit depths are requantized to 16 bits.
type PCM struct {
	SampleRate int
	Channels   int
	BitDepth   int // bit depth of the source file
	Samples    []int16
}

// Frames is the number of samples per channel.
func (p *PCM) Frames() int {
	if p.Channels <= 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

func (p *PCM) Duration() float64 {
	if p.SampleRate <= 0 {
		return 0
	}
	return float64(p.Frames()) / float64(p.SampleRate)
}

// Mono averages all channels into one.
func (p *PCM) Mono() []int16 {
	if p.Channels <= 1 {
		return p.Samples
	}
	frames := p.Frames()
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for c := 0; c < p.Channels; c++ {
			sum += int(p.Samples[i*p.Channels+c])
		}
		out[i] = int16(sum / p.Channels)
	}
	return out
}

func ReadWAV(path string) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pcm, err := DecodeWAV(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pcm, nil
}

// DecodeWAV reads a RIFF/WAVE stream with integer PCM data.
func DecodeWAV(r io.Reader) (*PCM, error) {
	riffHeader := make([]byte, 12)
	if _, err := io.ReadFull(r, riffHeader); err != nil {
		return nil, err
	}
	if string(riffHeader[0:4]) != "RIFF" || string(riffHeader[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	pcm := &PCM{Channels: 1, BitDepth: 16}
	haveFmt := false

	for {
		chunkHeader := make([]byte, 8)
		if _, err := io.ReadFull(r, chunkHeader); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}

		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || chunkSize > maxFmtSize {
				return nil, fmt.Errorf("bad fmt chunk size %d", chunkSize)
			}
			fmtData := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, fmtData); err != nil {
				return nil, err
			}
			audioFormat := binary.LittleEndian.Uint16(fmtData[0:2])
			if audioFormat != formatPCM && audioFormat != formatExtensible {
				return nil, errors.New("only PCM format supported")
			}
			pcm.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
			pcm.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			pcm.BitDepth = int(binary.LittleEndian.Uint16(fmtData[14:16]))
			if pcm.Channels < 1 {
				return nil, errors.New("invalid channel count")
			}
			if chunkSize%2 != 0 {
				if _, err := io.CopyN(io.Discard, r, 1); err != nil {
					return nil, err
				}
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, errors.New("data chunk before fmt chunk")
			}
			// Streaming writers leave a bogus size such as 0xFFFFFFFF;
			// read what is actually there.
			data, err := io.ReadAll(io.LimitReader(r, int64(chunkSize)))
			if err != nil {
				return nil, err
			}
			samples, err := decodeSamples(data, pcm.BitDepth)
			if err != nil {
				return nil, err
			}
			pcm.Samples = samples
			return pcm, nil

		default:
			// LIST, INFO and friends; chunks are padded to even sizes
			skipSize := int64(chunkSize)
			if chunkSize%2 != 0 {
				skipSize++
			}
			if _, err := io.CopyN(io.Discard, r, skipSize); err != nil {
				return nil, err
			}
		}
	}

	return nil, errors.New("data chunk not found")
}

func decodeSamples(data []byte, bitsPerSample int) ([]int16, error) {
	bytesPerSample := bitsPerSample / 8
	if bytesPerSample < 1 || bytesPerSample > 4 {
		return nil, fmt.Errorf("unsupported bit depth %d", bitsPerSample)
	}

	numSamples := len(data) / bytesPerSample
	samples := make([]int16, numSamples)

	for i := 0; i < numSamples; i++ {
		offset := i * bytesPerSample
		switch bitsPerSample {
		case 8:
			samples[i] = int16((int(data[offset]) - 128) << 8)
		case 16:
			samples[i] = int16(binary.LittleEndian.Uint16(data[offset : offset+2]))
		case 24:
			b := data[offset : offset+3]
			val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			if val&0x800000 != 0 {
				val |= ^0xFFFFFF
			}
			samples[i] = int16(val >> 8)
		case 32:
			val := int32(binary.LittleEndian.Uint32(data[offset : offset+4]))
			samples[i] = int16(val >> 16)
		default:
			return nil, fmt.Errorf("unsupported bit depth %d", bitsPerSample)
		}
	}

	return samples, nil
}

// WriteWAV writes mono 16-bit PCM, creating parent directories.
func WriteWAV(path string, sampleRate int, samples []int16) error {
	return WritePCM(path, &PCM{SampleRate: sampleRate, Channels: 1, BitDepth: 16, Samples: samples})
}

// WritePCM writes p as 16-bit PCM with its own channel layout.
func WritePCM(path string, p *PCM) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(f)
	if err := EncodeWAV(bw, p.SampleRate, max(p.Channels, 1), p.Samples); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// EncodeWAV writes a canonical 44-byte header followed by 16-bit samples.
func EncodeWAV(w io.Writer, sampleRate, channels int, samples []int16) error {
	dataSize := uint32(len(samples) * 2)
	blockAlign := uint16(channels * 2)
	byteRate := uint32(sampleRate) * uint32(blockAlign)

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataSize)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], formatPCM)
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], byteRate)
	binary.LittleEndian.PutUint16(header[32:34], blockAlign)
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataSize)

	if _, err := w.Write(header); err != nil {
		return err
	}

	buf := make([]byte, 2)
	for _, s := range samples {
		binary.LittleEndian.PutUint16(buf, uint16(s))
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// ToFloat normalizes samples to [-1, 1).
func ToFloat(samples []int16) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s) / 32768
	}
	return out
}
