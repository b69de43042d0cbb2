package auth

import (
	"encoding/base64"
	"errors"
)

// ErrMalformedEncoding reports a segment that is not unpadded base64url.
var ErrMalformedEncoding = errors.New("auth: malformed encoding")

var segmentEncoding = base64.RawURLEncoding.Strict()

// EncodeSegment encodes raw bytes as unpadded base64url.
func EncodeSegment(raw []byte) string {
	return segmentEncoding.EncodeToString(raw)
}

// DecodeSegment reverses EncodeSegment. Padding characters, characters outside
// the URL-safe alphabet and impossible lengths all yield ErrMalformedEncoding.
func DecodeSegment(s string) ([]byte, error) {
	out, err := segmentEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrMalformedEncoding
	}
	return out, nil
}
