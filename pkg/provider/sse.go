package provider

import (
	"bufio"
	"bytes"
	"io"
)

// maxLineSize bounds a single SSE line. Gemini sends generated images inline,
// so lines are far larger than bufio's default.
const maxLineSize = 32 * 1024 * 1024

var dataPrefix = []byte("data:")

// scanData calls fn with the payload of each "data:" line until fn returns
// false or the body ends. Other SSE fields, comments and keep-alives are
// ignored. The payload is only valid during the call.
func scanData(body io.Reader, fn func(payload []byte) bool) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := bytes.TrimSpace(line[len(dataPrefix):])
		if len(payload) == 0 {
			continue
		}
		if !fn(payload) {
			return nil
		}
	}
	return scanner.Err()
}
