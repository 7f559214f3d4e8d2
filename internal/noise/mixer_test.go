package noise

import (
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"speech-manifests/internal/audio"
)

func sine(n int, freq, amp float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * math.Sin(2*math.Pi*freq*float64(i)/16000))
	}
	return out
}

func constant(n int, v int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestScaleNoiseHitsTargetSNR(t *testing.T) {
	signal := toFloat(sine(16000, 440, 8000))
	noise := toFloat(sine(16000, 97, 3000))

	for _, snr := range []float64{-5, 0, 3.5, 10, 20} {
		scaled, err := ScaleNoise(signal, noise, snr)
		if err != nil {
			t.Fatalf("snr %v: %v", snr, err)
		}
		got := 20 * math.Log10(audio.RMS(signal)/audio.RMS(scaled))
		if math.Abs(got-snr) > 1e-9 {
			t.Errorf("snr %v: measured %v", snr, got)
		}
	}
}

func TestFit(t *testing.T) {
	noise := []float64{1, 2, 3}
	tests := []struct {
		n    int
		want []float64
	}{
		{3, []float64{1, 2, 3}},
		{7, []float64{1, 2, 3, 1, 2, 3, 1}},
		{2, []float64{1, 2}},
		{6, []float64{1, 2, 3, 1, 2, 3}},
	}
	for _, tt := range tests {
		if got := Fit(noise, tt.n); !slices.Equal(got, tt.want) {
			t.Errorf("Fit(n=%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestMixKeepsSignalLength(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 0))
	for _, lens := range [][2]int{{100, 100}, {100, 7}, {100, 1000}, {1, 50}, {333, 10}} {
		signal := sine(lens[0], 300, 5000)
		signal[0] = 1000
		noise := sine(lens[1], 50, 2000)
		noise[0] = 500

		out, err := Mix(signal, noise, Range(0, 20), rng)
		if err != nil {
			t.Fatalf("lens %v: %v", lens, err)
		}
		if len(out) != len(signal) {
			t.Errorf("lens %v: output length %d", lens, len(out))
		}
	}
}

func TestMixConstantExample(t *testing.T) {
	// 100 samples at 1000 plus 40 samples of 100 at 0 dB: noise is tiled,
	// scaled by 10 and every output sample is 2000.
	out, err := Mix(constant(100, 1000), constant(40, 100), Fixed(0), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 100 {
		t.Fatalf("len = %d", len(out))
	}
	for i, v := range out {
		if v != 2000 {
			t.Fatalf("out[%d] = %d, want 2000", i, v)
		}
	}
}

func TestClipGuardPositive(t *testing.T) {
	res, err := Apply(constant(50, 30000), constant(50, 100), Fixed(0), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Gain >= 1 {
		t.Fatalf("gain = %v, expected a rescale", res.Gain)
	}
	top := slices.Max(res.Samples)
	if top != math.MaxInt16 && top != math.MaxInt16-1 {
		t.Errorf("max = %d, want 32767", top)
	}
}

func TestClipGuardNegative(t *testing.T) {
	res, err := Apply(constant(50, -30000), constant(50, -100), Fixed(0), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Gain >= 1 {
		t.Fatalf("gain = %v, expected a rescale", res.Gain)
	}
	bottom := slices.Min(res.Samples)
	if bottom != math.MinInt16 && bottom != math.MinInt16+1 {
		t.Errorf("min = %d, want -32768", bottom)
	}
}

func TestClipGuardPreservesProportions(t *testing.T) {
	signal := sine(4000, 200, 30000)
	noise := sine(4000, 330, 10000)

	// unguarded mix for reference
	s := toFloat(signal)
	scaled, err := ScaleNoise(s, Fit(toFloat(noise), len(s)), 0)
	if err != nil {
		t.Fatal(err)
	}
	raw := make([]float64, len(s))
	for i := range s {
		raw[i] = s[i] + scaled[i]
	}

	res, err := Apply(signal, noise, Fixed(0), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Gain >= 1 {
		t.Fatalf("gain = %v, expected a rescale", res.Gain)
	}
	for i, v := range res.Samples {
		if d := math.Abs(float64(v) - raw[i]*res.Gain); d >= 1 {
			t.Fatalf("sample %d: got %d, want %.2f", i, v, raw[i]*res.Gain)
		}
	}
	if slices.Max(res.Samples) > math.MaxInt16 || slices.Min(res.Samples) < math.MinInt16 {
		t.Error("output outside int16 range")
	}
}

func TestClipGuardNoopInRange(t *testing.T) {
	mixed := []float64{-32768, 0, 32767, 12.5}
	if g := ClipGuard(mixed); g != 1 {
		t.Errorf("gain = %v, want 1", g)
	}
	if !slices.Equal(mixed, []float64{-32768, 0, 32767, 12.5}) {
		t.Errorf("mixed changed: %v", mixed)
	}
}

func TestMixRangeIsReproducible(t *testing.T) {
	signal := sine(800, 440, 6000)
	noise := sine(300, 90, 4000)
	snr := Range(5, 15)

	a, err := Apply(signal, noise, snr, rand.New(rand.NewPCG(42, 42)))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Apply(signal, noise, snr, rand.New(rand.NewPCG(42, 42)))
	if err != nil {
		t.Fatal(err)
	}
	if a.SNRDB != b.SNRDB || !slices.Equal(a.Samples, b.Samples) {
		t.Error("same seed gave different mixes")
	}
	if a.SNRDB < 5 || a.SNRDB > 15 {
		t.Errorf("drawn snr %v outside [5, 15]", a.SNRDB)
	}

	if _, err := Apply(signal, noise, snr, nil); !errors.Is(err, ErrNoRand) {
		t.Errorf("nil rng with range: err = %v", err)
	}
}

func TestMixErrors(t *testing.T) {
	if _, err := Mix(nil, constant(10, 1), Fixed(0), nil); !errors.Is(err, ErrEmptySignal) {
		t.Errorf("empty signal: %v", err)
	}
	if _, err := Mix(constant(10, 1), nil, Fixed(0), nil); !errors.Is(err, ErrEmptyNoise) {
		t.Errorf("empty noise: %v", err)
	}
	if _, err := Mix(constant(10, 1), constant(10, 0), Fixed(0), nil); !errors.Is(err, ErrSilentNoise) {
		t.Errorf("silent noise: %v", err)
	}
}

func TestParseSNR(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		isRange bool
		wantErr bool
	}{
		{"0", "0", false, false},
		{"-2.5", "-2.5", false, false},
		{"5:15", "5:15", true, false},
		{"15:5", "5:15", true, false},
		{"loud", "", false, true},
		{"5:x", "", false, true},
	}
	for _, tt := range tests {
		got, err := ParseSNR(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSNR(%q) err = %v", tt.in, err)
			continue
		}
		if err != nil {
			continue
		}
		if got.String() != tt.want || got.IsRange() != tt.isRange {
			t.Errorf("ParseSNR(%q) = %s (range=%v)", tt.in, got, got.IsRange())
		}
	}
}

func TestCollectBalanced(t *testing.T) {
	root := t.TempDir()
	touch := func(rel string) {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range []string{"music/a.wav", "music/sub/b.wav", "music/c.WAV", "music/readme.txt",
		"noise/x.wav", "noise/y.wav"} {
		touch(f)
	}
	dirs := []string{filepath.Join(root, "music"), filepath.Join(root, "noise")}

	all, err := Collect(dirs, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if all.Len() != 5 {
		t.Errorf("unbalanced pool = %d clips, want 5", all.Len())
	}

	rng := rand.New(rand.NewPCG(42, 0))
	bal, err := Collect(dirs, true, rng)
	if err != nil {
		t.Fatal(err)
	}
	if bal.Len() != 4 {
		t.Errorf("balanced pool = %d clips, want 4", bal.Len())
	}
	var music int
	for _, c := range bal.Clips() {
		if filepath.Base(filepath.Dir(c)) == "music" || filepath.Base(filepath.Dir(c)) == "sub" {
			music++
		}
	}
	if music != 2 {
		t.Errorf("balanced pool has %d music clips, want 2", music)
	}

	clip, err := bal.Pick(rng)
	if err != nil || !slices.Contains(bal.Clips(), clip) {
		t.Errorf("Pick = %q, %v", clip, err)
	}

	if _, err := Collect([]string{t.TempDir()}, false, nil); !errors.Is(err, ErrEmptyPool) {
		t.Errorf("empty dir: err = %v", err)
	}
}
