// Package qr renders pairing payloads as PNG data URLs for the dashboard.
package qr

import (
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
)

// imageSize is the rendered QR code edge length in pixels.
const imageSize = 256

// DataURL encodes payload as a QR code PNG and returns it as a
// data:image/png;base64 URL suitable for an <img> src.
func DataURL(payload string) (string, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, imageSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
