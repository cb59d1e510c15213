package artifacts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile replaces path atomically through a sibling temp file.
func WriteFile(path string, payload []byte) error {
	if path == "" {
		return fmt.Errorf("artifact path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmpPath := path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	_, writeErr := file.Write(payload)
	syncErr := file.Sync()
	closeErr := file.Close()
	for _, err := range []error{writeErr, syncErr, closeErr} {
		if err != nil {
			_ = os.Remove(tmpPath)
			return err
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// WriteJSON writes value as indented JSON.
func WriteJSON(path string, value any) error {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return WriteFile(path, append(payload, '\n'))
}

// WriteJSONL writes one compact JSON line per item. Non-ASCII text is kept
// as is.
func WriteJSONL[T any](path string, items []T) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	for i, item := range items {
		if err := encoder.Encode(item); err != nil {
			return fmt.Errorf("encode line %d: %w", i+1, err)
		}
	}
	return WriteFile(path, buf.Bytes())
}
