package provider

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var dataURIPattern = regexp.MustCompile(`^data:([^;,]+);base64,(.+)$`)

// InlineImage is a base64 image split out of a data-URI.
type InlineImage struct {
	MIMEType string
	Data     string // base64
}

// ParseDataURI splits a data:<mime>;base64,<data> URI. It reports false for
// anything else, including remote URLs.
func ParseDataURI(uri string) (InlineImage, bool) {
	m := dataURIPattern.FindStringSubmatch(uri)
	if m == nil {
		return InlineImage{}, false
	}
	return InlineImage{MIMEType: m[1], Data: m[2]}, true
}

// DataURI encodes the image back into a data-URI.
func (i InlineImage) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", i.MIMEType, i.Data)
}

// Bytes decodes the image payload.
func (i InlineImage) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(i.Data)
}

// EncodeImage turns raw image bytes into a data-URI, detecting the MIME type
// from the content.
func EncodeImage(raw []byte) (string, error) {
	mt := mimetype.Detect(raw)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("unsupported image type %s", mt.String())
	}
	return InlineImage{MIMEType: mt.String(), Data: base64.StdEncoding.EncodeToString(raw)}.DataURI(), nil
}
