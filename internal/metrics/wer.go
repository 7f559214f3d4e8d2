// Package metrics computes word and character error rates between a
// reference transcript and a system hypothesis.
package metrics

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

var (
	punctReg = regexp.MustCompile(`[.,!?;:"“”'‘’\-–—()[\]{}«»…/\\@#$%^&*+=<>|~` + "`" + `]`)
	spaceReg = regexp.MustCompile(`\s+`)
)

// unit costs; levenshtein.DefaultOptions charges 2 for a substitution
var editOptions = levenshtein.Options{
	InsCost: 1,
	DelCost: 1,
	SubCost: 1,
	Matches: levenshtein.IdenticalRunes,
}

// Normalize lowercases text and replaces punctuation with spaces.
func Normalize(text string) string {
	text = strings.ToLower(text)
	text = punctReg.ReplaceAllString(text, " ")
	text = spaceReg.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// WER - Word Error Rate
func WER(reference, hypothesis string) float64 {
	refWords := strings.Fields(Normalize(reference))
	hypWords := strings.Fields(Normalize(hypothesis))

	if len(refWords) == 0 {
		if len(hypWords) == 0 {
			return 0
		}
		return 1
	}

	ref, hyp := wordsToRunes(refWords, hypWords)
	d := levenshtein.DistanceForStrings(ref, hyp, editOptions)
	return float64(d) / float64(len(refWords))
}

// CER - Character Error Rate, spaces excluded.
func CER(reference, hypothesis string) float64 {
	ref := strings.ReplaceAll(Normalize(reference), " ", "")
	hyp := strings.ReplaceAll(Normalize(hypothesis), " ", "")

	n := utf8.RuneCountInString(ref)
	if n == 0 {
		if hyp == "" {
			return 0
		}
		return 1
	}

	d := levenshtein.DistanceForStrings([]rune(ref), []rune(hyp), editOptions)
	return float64(d) / float64(n)
}

// wordsToRunes gives every distinct word one symbol so the rune-based
// distance counts word edits.
func wordsToRunes(a, b []string) ([]rune, []rune) {
	vocab := make(map[string]rune)
	encode := func(words []string) []rune {
		out := make([]rune, len(words))
		for i, w := range words {
			r, ok := vocab[w]
			if !ok {
				r = rune(len(vocab))
				vocab[w] = r
			}
			out[i] = r
		}
		return out
	}
	return encode(a), encode(b)
}

// Corpus accumulates edit counts over many utterances so the final rate is
// weighted by reference length, not averaged per sentence.
type Corpus struct {
	WordErrors int
	RefWords   int
	CharErrors int
	RefChars   int
	Utterances int
}

func (c *Corpus) Add(reference, hypothesis string) {
	refWords := strings.Fields(Normalize(reference))
	hypWords := strings.Fields(Normalize(hypothesis))
	ref, hyp := wordsToRunes(refWords, hypWords)
	c.WordErrors += levenshtein.DistanceForStrings(ref, hyp, editOptions)
	c.RefWords += len(refWords)

	refChars := []rune(strings.Join(refWords, ""))
	hypChars := []rune(strings.Join(hypWords, ""))
	c.CharErrors += levenshtein.DistanceForStrings(refChars, hypChars, editOptions)
	c.RefChars += len(refChars)

	c.Utterances++
}

func (c *Corpus) WER() float64 {
	return rate(c.WordErrors, c.RefWords)
}

func (c *Corpus) CER() float64 {
	return rate(c.CharErrors, c.RefChars)
}

func rate(errs, total int) float64 {
	if total == 0 {
		if errs == 0 {
			return 0
		}
		return 1
	}
	return float64(errs) / float64(total)
}
