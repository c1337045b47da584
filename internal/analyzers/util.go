package analyzers

import (
	"bytes"
	"image/gif"
)

func newReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }

func decodeGIF(b []byte) (*gif.GIF, error) {
	return gif.DecodeAll(bytes.NewReader(b))
}
