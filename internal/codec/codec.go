// Package codec implements the reversible bijection between arbitrary
// user-chosen filenames and the restricted character set the backend
// permits for attachment names.
package codec

import (
	"encoding/base64"
	"fmt"
)

// MaxDecodedLen is the longest decoded filename the codec guarantees to
// round-trip for a given backend-side filename cap.
func MaxDecodedLen(backendMaxFilename int) int {
	return (backendMaxFilename * 3) / 4
}

// Encode maps an arbitrary byte filename onto the backend-safe alphabet:
// unpadded, URL-safe base64. The encoding is applied to the whole decoded
// name, including any ".PARTk" suffix already appended by the caller, so
// the part relationship only becomes visible after Decode.
func Encode(name string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(name))
}

// Decode reverses Encode. It fails with a codec-error wrapped message if
// encoded is not valid unpadded URL-safe base64.
func Decode(encoded string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("codec: decode %q: %w", encoded, err)
	}
	return string(b), nil
}
