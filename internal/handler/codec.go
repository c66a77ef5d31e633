package handler

import (
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/routefs/routefs/pkg/errors"
)

// Codec converts between stream bytes and text in a named encoding
type Codec struct {
	name string
	enc  encoding.Encoding
}

// NewCodec resolves a WHATWG or IANA encoding label such as "utf-8",
// "utf-16le" or "shift_jis".
func NewCodec(name string) (*Codec, error) {
	label := strings.ToLower(strings.TrimSpace(name))
	if label == "" {
		return nil, errors.NewError(errors.ErrCodeEncodingUnsupported, "empty encoding name").
			WithComponent("handler")
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEncodingUnsupported, "unknown encoding "+name).
			WithComponent("handler").
			WithContext("encoding", name)
	}

	canonical, err := htmlindex.Name(enc)
	if err != nil {
		canonical = label
	}
	return &Codec{name: canonical, enc: enc}, nil
}

// Name returns the canonical encoding name
func (c *Codec) Name() string {
	return c.name
}

// Decode converts encoded bytes to text
func (c *Codec) Decode(data []byte) (string, error) {
	out, err := c.enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeHandlerFailure, "decode "+c.name).
			WithComponent("handler")
	}
	return string(out), nil
}

// Encode converts text to encoded bytes
func (c *Codec) Encode(text string) ([]byte, error) {
	out, err := c.enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeHandlerFailure, "encode "+c.name).
			WithComponent("handler")
	}
	return out, nil
}
