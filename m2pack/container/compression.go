package container

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Compression identifies how an entry payload is stored in the data stream.
type Compression uint8

const (
	// CompressionZlib deflates the payload with a zlib wrapper. It is the default.
	CompressionZlib Compression = iota
	// CompressionPng stores PNG images as-is.
	CompressionPng
	// CompressionUsm stores USM video containers as-is.
	CompressionUsm
)

var compressionNames = map[Compression]string{
	CompressionZlib: "Zlib",
	CompressionPng:  "Png",
	CompressionUsm:  "Usm",
}

func (c Compression) String() string {
	if name, ok := compressionNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Compression(%d)", uint8(c))
}

// Valid reports whether c is one of the known kinds.
func (c Compression) Valid() bool {
	_, ok := compressionNames[c]
	return ok
}

// ParseCompression parses the textual name produced by String.
func ParseCompression(s string) (Compression, error) {
	for c, name := range compressionNames {
		if name == s {
			return c, nil
		}
	}
	return CompressionZlib, fmt.Errorf("unknown compression %q", s)
}

func encodePayload(c Compression, raw []byte) ([]byte, error) {
	if c != CompressionZlib {
		return raw, nil
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return nil, fmt.Errorf("zlib write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zlib close: %w", err)
	}
	return buf.Bytes(), nil
}

func decodePayload(c Compression, stored []byte) ([]byte, error) {
	if c != CompressionZlib {
		return stored, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(stored))
	if err != nil {
		return nil, fmt.Errorf("zlib open: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("zlib read: %w", err)
	}
	return raw, nil
}
