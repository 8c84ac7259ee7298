package reference

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// minBareBase64 keeps short identifiers from being mistaken for payloads.
const minBareBase64 = 64

// ErrNotInline is returned by DecodeInline for values that are not carried
// inline, such as paths and URLs.
var ErrNotInline = errors.New("reference: not an inline payload")

// DecodeInline decodes a data URI or a bare base64 string holding an image
// or video. A data URI that cannot be decoded yields a descriptive error
// rather than ErrNotInline.
func DecodeInline(raw string) (data []byte, mime string, err error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(raw), "data:") {
		return decodeDataURI(raw)
	}
	if len(raw) < minBareBase64 {
		return nil, "", ErrNotInline
	}
	data, err = decodeBase64(raw)
	if err != nil {
		return nil, "", ErrNotInline
	}
	mime, ok := mediaType(data)
	if !ok {
		return nil, "", ErrNotInline
	}
	return data, mime, nil
}

func decodeDataURI(raw string) ([]byte, string, error) {
	comma := strings.IndexByte(raw, ',')
	if comma < 0 {
		return nil, "", errors.New("reference: malformed data URI")
	}
	header := raw[len("data:"):comma]
	params := strings.Split(header, ";")
	if params[len(params)-1] != "base64" {
		return nil, "", errors.New("reference: data URI must be base64 encoded")
	}
	data, err := decodeBase64(raw[comma+1:])
	if err != nil {
		return nil, "", errors.New("reference: data URI payload is not valid base64")
	}
	if len(data) == 0 {
		return nil, "", errors.New("reference: data URI payload is empty")
	}
	declared := strings.ToLower(strings.TrimSpace(params[0]))
	mime, ok := mediaType(data)
	if !ok && declared == "" {
		return nil, "", errors.New("reference: data URI holds no recognizable media")
	}
	if !ok {
		mime = declared
	}
	return data, mime, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func mediaType(data []byte) (string, bool) {
	mt := mimetype.Detect(data)
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") || strings.HasPrefix(m.String(), "video/") {
			return mt.String(), true
		}
	}
	return mt.String(), false
}
