package dtos

import "html/template"

// ShortenPage is rendered by the index template. The zero value is the
// bare form.
type ShortenPage struct {
	LongURL  string
	ShortURL string
	Code     string
	// QRCode is a data: URI, trusted so html/template keeps it in src.
	QRCode template.URL
}
