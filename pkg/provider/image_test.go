package provider

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataURI(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		ok   bool
		mime string
	}{
		{"png", "data:image/png;base64," + pngPixel, true, "image/png"},
		{"jpeg", "data:image/jpeg;base64,/9j/4AAQ", true, "image/jpeg"},
		{"remote url", "https://example.com/cat.png", false, ""},
		{"not base64", "data:image/png,rawbytes", false, ""},
		{"empty payload", "data:image/png;base64,", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, ok := ParseDataURI(tt.uri)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.mime, img.MIMEType)
			if ok {
				assert.Equal(t, tt.uri, img.DataURI())
			}
		})
	}
}

func TestEncodeImage(t *testing.T) {
	raw, err := base64.StdEncoding.DecodeString(pngPixel)
	require.NoError(t, err)

	uri, err := EncodeImage(raw)
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,"+pngPixel, uri)

	_, err = EncodeImage([]byte("just some text"))
	assert.Error(t, err)
}
