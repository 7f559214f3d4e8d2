// Package manifest defines the Sample Record written to every JSONL
// manifest and the writer that appends records with duplicate-id
// suppression.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var ErrInvalidRecord = errors.New("invalid record")

// Record is one line of a manifest. Field order is the serialized key order
// and must not change.
type Record struct {
	DatasetID         string   `json:"dataset_id"`
	SampleID          SampleID `json:"sample_id"`
	SrcAudio          *string  `json:"src_audio"`
	SrcRef            *string  `json:"src_ref"`
	TgtRef            *string  `json:"tgt_ref"`
	SrcLang           string   `json:"src_lang"`
	TgtLang           *string  `json:"tgt_lang"`
	BenchmarkMetadata Metadata `json:"benchmark_metadata"`
}

// StringPtr is a helper for the nullable record fields.
func StringPtr(s string) *string {
	return &s
}

func (r Record) Validate() error {
	if r.DatasetID == "" {
		return fmt.Errorf("%w: empty dataset_id", ErrInvalidRecord)
	}
	if r.SampleID.IsZero() {
		return fmt.Errorf("%w: empty sample_id", ErrInvalidRecord)
	}
	if r.SrcLang == "" {
		return fmt.Errorf("%w: sample %s has empty src_lang", ErrInvalidRecord, r.SampleID)
	}
	return nil
}

// Marshal encodes r as a single JSON line without the trailing newline.
// Non-ASCII text is written literally and HTML characters are not escaped.
func Marshal(r Record) ([]byte, error) {
	return marshalNoEscape(r)
}

// SampleID is either a string or an integer, as found in the source corpora.
type SampleID struct {
	str   string
	num   int64
	isNum bool
}

func StringID(s string) SampleID {
	return SampleID{str: s}
}

func IntID(n int64) SampleID {
	return SampleID{num: n, isNum: true}
}

func (id SampleID) IsZero() bool {
	return !id.isNum && id.str == ""
}

func (id SampleID) IsInt() bool {
	return id.isNum
}

func (id SampleID) String() string {
	if id.isNum {
		return strconv.FormatInt(id.num, 10)
	}
	return id.str
}

// Key is the canonical JSON form; the string "7" and the integer 7 are
// different ids.
func (id SampleID) Key() string {
	b, _ := id.MarshalJSON()
	return string(b)
}

func (id SampleID) MarshalJSON() ([]byte, error) {
	if id.isNum {
		return []byte(strconv.FormatInt(id.num, 10)), nil
	}
	return marshalNoEscape(id.str)
}

func (id *SampleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return fmt.Errorf("%w: null sample_id", ErrInvalidRecord)
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: sample_id %s is not a string or integer", ErrInvalidRecord, b)
	}
	*id = IntID(n)
	return nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
