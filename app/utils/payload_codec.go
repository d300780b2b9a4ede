package utils

import (
	"bytes"
	"compress/bzip2"
	"encoding/base64"
	"fmt"
	"io"

	"provision-svc/app/domains"
)

// Supported attachment encodings and compressions
const (
	EncodingBase64   = "base64"
	CompressionBzip2 = "bzip2"
)

// MaxDecodedPayloadBytes caps the size of one decoded attachment
var MaxDecodedPayloadBytes int64 = 64 << 20

var allowedEncodings = map[string]bool{
	EncodingBase64: true,
}

var allowedCompressions = map[string]bool{
	CompressionBzip2: true,
}

// DecodePayload turns an attachment body into raw bytes.
// The body is base-decoded first and then decompressed when compression is set.
// Any failure is returned as a *domains.ValidationError and no bytes are returned.
func DecodePayload(encoding, compression, content string) ([]byte, error) {
	if !allowedEncodings[encoding] {
		return nil, domains.NewValidationError("invalid encoding: %s", encoding)
	}
	if compression != "" && !allowedCompressions[compression] {
		return nil, domains.NewValidationError("invalid compression: %s", compression)
	}

	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return nil, domains.NewValidationError("failed to decode %s content: %v", encoding, err)
	}

	if compression == "" {
		if int64(len(raw)) > MaxDecodedPayloadBytes {
			return nil, domains.NewValidationError("decoded content exceeds %d bytes", MaxDecodedPayloadBytes)
		}
		return raw, nil
	}

	reader := io.LimitReader(bzip2.NewReader(bytes.NewReader(raw)), MaxDecodedPayloadBytes+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, domains.NewValidationError("failed to decompress %s content: %v", compression, err)
	}
	if int64(len(data)) > MaxDecodedPayloadBytes {
		return nil, domains.NewValidationError("decompressed content exceeds %d bytes", MaxDecodedPayloadBytes)
	}
	return data, nil
}

// EncodePayload base64-encodes raw bytes for an uncompressed attachment
func EncodePayload(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// FormatDecodeError renders a decode failure for a single attachment path
func FormatDecodeError(path string, err error) error {
	return fmt.Errorf("file %q: %w", path, err)
}
