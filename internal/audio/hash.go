package audio

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
)

// MD5File hashes a staged file; the catalog uses it to spot the same audio
// staged under two sample ids.
func MD5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return MD5Reader(f)
}

func MD5Reader(r io.Reader) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
