package utils

import (
	"encoding/base64"
	"testing"

	"provision-svc/app/domains"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bzip2("hello"), base64 encoded
const helloBzip2 = "QlpoOTFBWSZTWRkxZT0AAACBAAJEoAAhmmgzTQczi7kinChIDJiynoA="

func TestDecodePayload(t *testing.T) {
	tests := []struct {
		name        string
		encoding    string
		compression string
		content     string
		want        []byte
	}{
		{
			name:        "base64 with bzip2",
			encoding:    EncodingBase64,
			compression: CompressionBzip2,
			content:     helloBzip2,
			want:        []byte("hello"),
		},
		{
			name:     "base64 without compression",
			encoding: EncodingBase64,
			content:  "aGVsbG8=",
			want:     []byte("hello"),
		},
		{
			name:     "empty content",
			encoding: EncodingBase64,
			content:  "",
			want:     []byte{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePayload(tt.encoding, tt.compression, tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodePayload_CompressedBytesWithoutCompression(t *testing.T) {
	raw, err := base64.StdEncoding.DecodeString(helloBzip2)
	require.NoError(t, err)

	got, err := DecodePayload(EncodingBase64, "", helloBzip2)
	require.NoError(t, err)
	assert.Equal(t, raw, got)
	assert.Equal(t, "BZh9", string(got[:4]))
}

func TestDecodePayload_Rejects(t *testing.T) {
	tests := []struct {
		name        string
		encoding    string
		compression string
		content     string
		wantMsg     string
	}{
		{
			name:     "unknown encoding",
			encoding: "uuencode",
			content:  "aGVsbG8=",
			wantMsg:  "invalid encoding: uuencode",
		},
		{
			name:        "unknown compression",
			encoding:    EncodingBase64,
			compression: "jpeg",
			content:     helloBzip2,
			wantMsg:     "invalid compression: jpeg",
		},
		{
			name:     "unknown encoding with empty content",
			encoding: "uuencode",
			wantMsg:  "invalid encoding: uuencode",
		},
		{
			name:     "malformed base64",
			encoding: EncodingBase64,
			content:  "not base64!",
		},
		{
			name:        "content is not bzip2",
			encoding:    EncodingBase64,
			compression: CompressionBzip2,
			content:     "aGVsbG8=",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePayload(tt.encoding, tt.compression, tt.content)
			require.Error(t, err)
			assert.Nil(t, got)
			assert.ErrorIs(t, err, domains.ErrValidation)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, err.Error())
			}
		})
	}
}

func TestDecodePayload_SizeLimit(t *testing.T) {
	saved := MaxDecodedPayloadBytes
	MaxDecodedPayloadBytes = 4
	defer func() { MaxDecodedPayloadBytes = saved }()

	_, err := DecodePayload(EncodingBase64, CompressionBzip2, helloBzip2)
	assert.ErrorIs(t, err, domains.ErrValidation)

	_, err = DecodePayload(EncodingBase64, "", "aGVsbG8=")
	assert.ErrorIs(t, err, domains.ErrValidation)

	got, err := DecodePayload(EncodingBase64, "", "aGVs")
	require.NoError(t, err)
	assert.Equal(t, []byte("hel"), got)
}

func TestEncodePayload(t *testing.T) {
	encoded := EncodePayload([]byte("These are the contents of the file."))

	got, err := DecodePayload(EncodingBase64, "", encoded)
	require.NoError(t, err)
	assert.Equal(t, "These are the contents of the file.", string(got))
}

func TestFormatDecodeError(t *testing.T) {
	err := FormatDecodeError("00-maas-01-cpuinfo.out", domains.NewValidationError("invalid encoding: uuencode"))
	assert.ErrorIs(t, err, domains.ErrValidation)
	assert.Contains(t, err.Error(), "00-maas-01-cpuinfo.out")
}
