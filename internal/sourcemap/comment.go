package sourcemap

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
)

// CommentPrefix starts every comment produced by ToComment.
const CommentPrefix = "//# sourceMappingURL=data:application/json;charset=utf-8;base64,"

// inlineComment matches a data-URL map comment in either comment style,
// with a base64 or percent-encoded JSON payload.
var inlineComment = regexp.MustCompile(
	`(?m)^[ \t]*/[/*][@#][ \t]+sourceMappingURL=data:(?:application|text)/json(?:;charset=[^;,]+)?(;base64)?,(.*?)[ \t]*(?:\*/)?[ \t]*\r?$`)

// anyComment matches the text of a comment node that carries any map reference.
var anyComment = regexp.MustCompile(`^/[/*][@#][ \t]+sourceMappingURL=`)

// IsComment reports whether text, the full text of a single comment,
// is a sourceMappingURL comment.
func IsComment(text []byte) bool {
	return anyComment.Match(text)
}

// FromSource returns the map embedded in the last inline sourceMappingURL
// comment of src. It returns nil and no error when src carries no inline map.
// A comment that is present but cannot be decoded yields ErrMalformedMap.
func FromSource(src []byte) (*Map, error) {
	all := inlineComment.FindAllSubmatch(src, -1)
	if len(all) == 0 {
		return nil, nil
	}
	match := all[len(all)-1]

	var payload []byte
	if len(match[1]) > 0 {
		decoded, err := decodeBase64(match[2])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedMap, err)
		}
		payload = decoded
	} else {
		unescaped, err := url.PathUnescape(string(match[2]))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedMap, err)
		}
		payload = []byte(unescaped)
	}

	m, err := Parse(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMap, err)
	}
	return m, nil
}

// ToComment serialises m into a single-line inline comment.
func (m *Map) ToComment() (string, error) {
	data, err := m.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("encoding source map: %w", err)
	}
	return CommentPrefix + base64.StdEncoding.EncodeToString(data), nil
}

func decodeBase64(b []byte) ([]byte, error) {
	b = bytes.TrimSpace(b)
	if out, err := base64.StdEncoding.DecodeString(string(b)); err == nil {
		return out, nil
	}
	return base64.RawStdEncoding.DecodeString(string(bytes.TrimRight(b, "=")))
}
