package dm

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/corey/dmtree/internal/ports"
)

// Source encodings accepted by ReadOptions.Encoding.
const (
	EncodingAuto    = "auto"
	EncodingUTF8    = "utf-8"
	EncodingWin1252 = "windows-1252"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeSource converts raw file bytes to a Go string. In auto mode invalid
// UTF-8 is assumed to be Windows-1252, which is what BYOND itself writes.
// The second result reports whether the fallback was used.
func decodeSource(data []byte, encoding string) (string, bool, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	switch strings.ToLower(encoding) {
	case "", EncodingAuto:
		if utf8.Valid(data) {
			return string(data), false, nil
		}
		s, err := decode1252(data)
		return s, true, err
	case EncodingUTF8, "utf8":
		if !utf8.Valid(data) {
			return "", false, ports.ErrInvalidEncoding
		}
		return string(data), false, nil
	case EncodingWin1252, "cp1252":
		s, err := decode1252(data)
		return s, false, err
	default:
		return "", false, fmt.Errorf("unknown source encoding %q", encoding)
	}
}

func decode1252(data []byte) (string, error) {
	out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrInvalidEncoding, err)
	}
	return string(out), nil
}
