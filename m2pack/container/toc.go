package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zlib"
	"github.com/opencontainers/go-digest"
)

const (
	HeaderExt = ".m2h"
	DataExt   = ".m2d"

	tocVersion = 1

	// header: magic(4) | mode(1) | body length(4, big endian) | body
	headerPreambleSize = 9
	// data: magic(4) | payloads
	dataPreambleSize = 4

	maxHeaderBody = 1 << 30
)

var (
	headerMagic = []byte("M2H\x01")
	dataMagic   = []byte("M2D\x01")
)

// TOC is the table of contents stored in the header stream.
type TOC struct {
	Version    int           `json:"version"`
	Mode       string        `json:"mode"`
	DataSize   int64         `json:"dataSize"`
	DataDigest digest.Digest `json:"dataDigest"`
	Entries    []*TOCEntry   `json:"entries"`
}

// TOCEntry describes one payload in the data stream.
type TOCEntry struct {
	ID           uint32        `json:"id"`
	Name         string        `json:"name"`
	Compression  string        `json:"compression"`
	Offset       int64         `json:"offset"`
	StoredSize   int64         `json:"storedSize"`
	Size         int64         `json:"size"`
	Digest       digest.Digest `json:"digest"`
	InfoID       string        `json:"infoId,omitempty"`
	InfoPath     string        `json:"infoPath,omitempty"`
	RootFolderID string        `json:"rootFolderId,omitempty"`
}

func encodeHeader(toc *TOC, mode Mode, s *sealer) ([]byte, error) {
	tocJSON, err := json.Marshal(toc)
	if err != nil {
		return nil, fmt.Errorf("marshal TOC: %w", err)
	}

	var body bytes.Buffer
	zw := zlib.NewWriter(&body)
	if _, err := zw.Write(tocJSON); err != nil {
		zw.Close()
		return nil, fmt.Errorf("compress TOC: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress TOC: %w", err)
	}

	bodyBytes := body.Bytes()
	if mode.sealsHeader() {
		if bodyBytes, err = s.seal(bodyBytes); err != nil {
			return nil, fmt.Errorf("seal TOC: %w", err)
		}
	}

	out := make([]byte, headerPreambleSize, headerPreambleSize+len(bodyBytes))
	copy(out, headerMagic)
	out[4] = byte(mode)
	binary.BigEndian.PutUint32(out[5:9], uint32(len(bodyBytes)))
	return append(out, bodyBytes...), nil
}

// decodeHeader parses a header stream. The sealer is resolved lazily since the
// mode is only known after the preamble has been read.
func decodeHeader(r io.Reader, sealerFor func() (*sealer, error)) (*TOC, Mode, error) {
	preamble := make([]byte, headerPreambleSize)
	if _, err := io.ReadFull(r, preamble); err != nil {
		return nil, 0, fmt.Errorf("read header preamble: %w", err)
	}
	if !bytes.Equal(preamble[:4], headerMagic) {
		return nil, 0, fmt.Errorf("bad header magic %q", preamble[:4])
	}
	mode := Mode(preamble[4])
	if !mode.Valid() {
		return nil, 0, fmt.Errorf("unknown mode %d", preamble[4])
	}
	bodyLen := binary.BigEndian.Uint32(preamble[5:9])
	if bodyLen > maxHeaderBody {
		return nil, 0, fmt.Errorf("header body of %d bytes is too large", bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, 0, fmt.Errorf("read header body: %w", err)
	}

	if mode.sealsHeader() {
		s, err := sealerFor()
		if err != nil {
			return nil, 0, err
		}
		if body, err = s.open(body); err != nil {
			return nil, 0, fmt.Errorf("unseal TOC: %w", err)
		}
	}

	zr, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("open TOC: %w", err)
	}
	defer zr.Close()

	tocJSON, err := io.ReadAll(zr)
	if err != nil {
		return nil, 0, fmt.Errorf("read TOC: %w", err)
	}

	var toc TOC
	if err := json.Unmarshal(tocJSON, &toc); err != nil {
		return nil, 0, fmt.Errorf("unmarshal TOC: %w", err)
	}
	if toc.Version != tocVersion {
		return nil, 0, fmt.Errorf("unsupported TOC version %d", toc.Version)
	}
	if toc.Mode != mode.String() {
		return nil, 0, fmt.Errorf("TOC mode %q does not match header mode %q", toc.Mode, mode)
	}
	return &toc, mode, nil
}
