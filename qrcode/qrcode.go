// Package qrcode renders TOTP provisioning URIs as PNG data URIs.
package qrcode

import (
	"encoding/base64"
	"errors"
	"fmt"

	goqrcode "github.com/skip2/go-qrcode"
)

const dataURIPrefix = "data:image/png;base64,"

// Renderer implements boxumco.QRRenderer.
type Renderer struct {
	// Size is the image width and height in pixels.
	Size  int
	Level goqrcode.RecoveryLevel
}

// New returns a 256px renderer with medium error correction.
func New() *Renderer {
	return &Renderer{Size: 256, Level: goqrcode.Medium}
}

// Render encodes content and returns it as a data:image/png URI.
func (r *Renderer) Render(content string) (string, error) {
	if content == "" {
		return "", errors.New("qrcode: empty content")
	}
	size := r.Size
	if size <= 0 {
		size = 256
	}
	png, err := goqrcode.Encode(content, r.Level, size)
	if err != nil {
		return "", fmt.Errorf("qrcode: encode: %w", err)
	}
	return dataURIPrefix + base64.StdEncoding.EncodeToString(png), nil
}
