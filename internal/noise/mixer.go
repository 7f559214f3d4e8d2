// Package noise mixes a noise clip into clean speech at a target
// signal-to-noise ratio.
package noise

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"speech-manifests/internal/audio"
)

var (
	ErrEmptySignal = errors.New("empty signal")
	ErrEmptyNoise  = errors.New("empty noise")
	ErrSilentNoise = errors.New("noise has zero RMS")
	ErrNoRand      = errors.New("SNR range needs a random source")
)

// SNR is either a fixed value in dB or a closed range drawn uniformly on
// every mix.
type SNR struct {
	lo, hi float64
	ranged bool
}

func Fixed(db float64) SNR {
	return SNR{lo: db, hi: db}
}

func Range(lo, hi float64) SNR {
	if lo > hi {
		lo, hi = hi, lo
	}
	return SNR{lo: lo, hi: hi, ranged: true}
}

// ParseSNR accepts "0" or a range "5:15".
func ParseSNR(s string) (SNR, error) {
	s = strings.TrimSpace(s)
	if lo, hi, ok := strings.Cut(s, ":"); ok {
		l, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
		if err != nil {
			return SNR{}, fmt.Errorf("snr range %q: %w", s, err)
		}
		h, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
		if err != nil {
			return SNR{}, fmt.Errorf("snr range %q: %w", s, err)
		}
		return Range(l, h), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return SNR{}, fmt.Errorf("snr %q: %w", s, err)
	}
	return Fixed(v), nil
}

func (s SNR) IsRange() bool {
	return s.ranged
}

func (s SNR) String() string {
	if s.ranged {
		return fmt.Sprintf("%g:%g", s.lo, s.hi)
	}
	return strconv.FormatFloat(s.lo, 'g', -1, 64)
}

// Draw returns the dB value for one mix.
func (s SNR) Draw(rng *rand.Rand) (float64, error) {
	if !s.ranged {
		return s.lo, nil
	}
	if rng == nil {
		return 0, ErrNoRand
	}
	return s.lo + rng.Float64()*(s.hi-s.lo), nil
}

// Result describes one mix.
type Result struct {
	Samples []int16
	SNRDB   float64 // value actually used
	Gain    float64 // clip-guard factor, 1 when no rescale happened
}

// Mix adds noise to signal at snr. rng is only consulted for SNR ranges.
func Mix(signal, noise []int16, snr SNR, rng *rand.Rand) ([]int16, error) {
	res, err := Apply(signal, noise, snr, rng)
	if err != nil {
		return nil, err
	}
	return res.Samples, nil
}

func Apply(signal, noise []int16, snr SNR, rng *rand.Rand) (Result, error) {
	if len(signal) == 0 {
		return Result{}, ErrEmptySignal
	}
	if len(noise) == 0 {
		return Result{}, ErrEmptyNoise
	}

	db, err := snr.Draw(rng)
	if err != nil {
		return Result{}, err
	}

	s := toFloat(signal)
	n := Fit(toFloat(noise), len(s))

	scaled, err := ScaleNoise(s, n, db)
	if err != nil {
		return Result{}, err
	}

	mixed := make([]float64, len(s))
	for i := range s {
		mixed[i] = s[i] + scaled[i]
	}

	gain := ClipGuard(mixed)

	return Result{
		Samples: toInt16(mixed),
		SNRDB:   db,
		Gain:    gain,
	}, nil
}

// Fit tiles noise until it covers n samples and truncates it to exactly n,
// always starting from the first noise sample.
func Fit(noise []float64, n int) []float64 {
	out := make([]float64, n)
	if len(noise) == 0 {
		return out
	}
	for i := 0; i < n; i += len(noise) {
		copy(out[i:], noise)
	}
	return out
}

// ScaleNoise rescales noise so 20*log10(rms(signal)/rms(noise)) == snrDB.
// noise must already have the length of signal.
func ScaleNoise(signal, noise []float64, snrDB float64) ([]float64, error) {
	ampS := audio.RMS(signal)
	ampN := audio.RMS(noise)
	if ampN == 0 {
		return nil, ErrSilentNoise
	}

	factor := (ampS / ampN) / math.Pow(10, snrDB/20)
	out := make([]float64, len(noise))
	for i, v := range noise {
		out[i] = v * factor
	}
	return out, nil
}

// ClipGuard rescales mixed in place when it leaves the int16 range. A single
// factor is used for every sample so relative dynamics are kept; it puts the
// dominant excursion on its bound. The factor is returned (1 if untouched).
func ClipGuard(mixed []float64) float64 {
	if len(mixed) == 0 {
		return 1
	}

	hi, lo := mixed[0], mixed[0]
	for _, v := range mixed[1:] {
		if v > hi {
			hi = v
		}
		if v < lo {
			lo = v
		}
	}

	if hi <= math.MaxInt16 && lo >= math.MinInt16 {
		return 1
	}

	var factor float64
	if hi >= math.Abs(lo) {
		factor = math.MaxInt16 / hi
	} else {
		factor = math.MinInt16 / lo
	}

	for i := range mixed {
		mixed[i] *= factor
	}
	return factor
}

func toFloat(samples []int16) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s)
	}
	return out
}

// toInt16 truncates toward zero; values a rounding error past a bound are
// pinned to it.
func toInt16(samples []float64) []int16 {
	out := make([]int16, len(samples))
	for i, v := range samples {
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}
