// Package codec compresses post bodies for storage in a text column:
// gzip then base64, so the result is safe inside SQL literals and JSON
// strings. Decode is the exact inverse; the serving path depends on
// byte-for-byte round trips.
package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
)

// Encode gzips body and returns it base64 encoded.
func Encode(body string) (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(body)); err != nil {
		return "", fmt.Errorf("compress body: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("flush compressed body: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decode reverses Encode.
func Decode(encoded string) (string, error) {
	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return "", fmt.Errorf("open gzip stream: %w", err)
	}
	defer zr.Close()

	body, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("decompress body: %w", err)
	}
	return string(body), nil
}
