package noise

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrEmptyPool = errors.New("noise pool is empty")

// Pool is the set of noise clips a mix run draws from.
type Pool struct {
	clips []string
}

func NewPool(clips []string) *Pool {
	return &Pool{clips: clips}
}

// Collect gathers *.wav files under each directory. With balanced set, every
// directory is sampled down to the size of the smallest one, as done for
// MUSAN music vs. noise, and the merged list is shuffled.
func Collect(dirs []string, balanced bool, rng *rand.Rand) (*Pool, error) {
	perDir := make([][]string, 0, len(dirs))
	minLen := -1

	for _, dir := range dirs {
		wavs, err := findWavs(dir)
		if err != nil {
			return nil, fmt.Errorf("noise dir %s: %w", dir, err)
		}
		perDir = append(perDir, wavs)
		if minLen < 0 || len(wavs) < minLen {
			minLen = len(wavs)
		}
	}

	var clips []string
	for _, wavs := range perDir {
		if balanced && rng != nil {
			idx := rng.Perm(len(wavs))[:minLen]
			sort.Ints(idx)
			for _, i := range idx {
				clips = append(clips, wavs[i])
			}
			continue
		}
		clips = append(clips, wavs...)
	}

	if len(clips) == 0 {
		return nil, ErrEmptyPool
	}

	if balanced && rng != nil {
		rng.Shuffle(len(clips), func(i, j int) {
			clips[i], clips[j] = clips[j], clips[i]
		})
	}

	return &Pool{clips: clips}, nil
}

func findWavs(root string) ([]string, error) {
	var wavs []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.EqualFold(filepath.Ext(path), ".wav") {
			wavs = append(wavs, path)
		}
		return nil
	})
	sort.Strings(wavs)
	return wavs, err
}

func (p *Pool) Len() int {
	return len(p.clips)
}

func (p *Pool) Clips() []string {
	return p.clips
}

// Pick draws one clip uniformly.
func (p *Pool) Pick(rng *rand.Rand) (string, error) {
	if len(p.clips) == 0 {
		return "", ErrEmptyPool
	}
	return p.clips[rng.IntN(len(p.clips))], nil
}
