// Package metadata extracts the pushed image's content digest from the
// builder's metadata artifact (a buildx-style JSON document).
package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/opencontainers/go-digest"

	"github.com/shipway/shipway/pkg/logger"
	"github.com/shipway/shipway/pkg/validation"
)

// DigestField is the primary field carrying the image digest in buildx
// metadata output.
const DigestField = "containerimage.digest"

// ErrNoDigest signals neither the primary field nor the fallback scan
// found a canonical digest anywhere in the document.
var ErrNoDigest = errors.New("no image digest in build metadata")

// ExtractDigest returns the pushed image's digest from a build metadata
// document. It prefers the top-level containerimage.digest field; if
// that is absent or malformed it scans the whole document in order for
// the first canonical sha256 string. The scan guards against upstream
// metadata-format drift without loosening what counts as a digest.
func ExtractDigest(r io.Reader) (digest.Digest, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading build metadata: %w", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("parsing build metadata: %w", err)
	}

	if field, ok := doc[DigestField]; ok {
		var s string
		if err := json.Unmarshal(field, &s); err == nil && validation.IsCanonicalDigest(s) {
			return digest.Digest(s), nil
		}
		logger.Warn("Primary digest field not a canonical digest, falling back to scan", "field", DigestField)
	}

	if d, ok := scan(raw); ok {
		return d, nil
	}
	return "", ErrNoDigest
}

// ExtractDigestFromFile is ExtractDigest over a metadata file on disk.
func ExtractDigestFromFile(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening build metadata %s: %w", path, err)
	}
	defer f.Close()
	return ExtractDigest(f)
}

// frame tracks one open JSON container during the scan. In an object,
// string tokens alternate between key and value position.
type frame struct {
	obj bool
	key bool
}

// scan walks the document token by token and returns the first string
// value that is a canonical sha256 digest, in document order. Object
// keys are skipped: a digest only ever appears as a value.
func scan(raw []byte) (digest.Digest, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	var stack []frame
	endValue := func() {
		if n := len(stack); n > 0 && stack[n-1].obj {
			stack[n-1].key = true
		}
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			return "", false
		}
		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{':
				stack = append(stack, frame{obj: true, key: true})
			case '[':
				stack = append(stack, frame{})
			case '}', ']':
				stack = stack[:len(stack)-1]
				endValue()
			}
		case string:
			if n := len(stack); n > 0 && stack[n-1].obj && stack[n-1].key {
				stack[n-1].key = false // key consumed, next token is its value
				continue
			}
			endValue()
			if validation.IsCanonicalDigest(t) {
				return digest.Digest(t), true
			}
		default:
			endValue()
		}
	}
}
