package services

import (
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	minQRSize = 128
	maxQRSize = 1024
)

// QRService renders short URLs as PNG QR codes.
type QRService struct {
	size int
}

// NewQRService clamps size (pixels) to 128..1024.
func NewQRService(size int) QRService {
	if size < minQRSize {
		size = minQRSize
	}
	if size > maxQRSize {
		size = maxQRSize
	}
	return QRService{size: size}
}

// DataURI encodes text as a base64 PNG data URI for an <img> tag.
func (s QRService) DataURI(text string) (string, error) {
	png, err := qrcode.Encode(text, qrcode.Medium, s.size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
