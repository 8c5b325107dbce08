package container

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	m2errors "github.com/flaneur2020/m2pack/m2pack/errors"
)

// Mode selects which of the two streams are sealed.
type Mode uint8

const (
	ModeStandard Mode = iota
	ModeSealedHeader
	ModeSealedData
	ModeSealed
)

var modeNames = map[Mode]string{
	ModeStandard:     "standard",
	ModeSealedHeader: "sealed-header",
	ModeSealedData:   "sealed-data",
	ModeSealed:       "sealed",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// Valid reports whether m is one of the four known modes.
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// Modes lists the known modes in their numeric order.
func Modes() []Mode {
	return []Mode{ModeStandard, ModeSealedHeader, ModeSealedData, ModeSealed}
}

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return ModeStandard, m2errors.ErrInvalidMode.WithDetail("mode", s)
}

func (m Mode) sealsHeader() bool {
	return m == ModeSealedHeader || m == ModeSealed
}

func (m Mode) sealsData() bool {
	return m == ModeSealedData || m == ModeSealed
}

var defaultKey = []byte("m2pack default archive key")

// sealer encrypts blocks with AES-256-GCM. Sealed blocks are nonce||ciphertext.
type sealer struct {
	aead cipher.AEAD
}

func newSealer(key []byte) (*sealer, error) {
	if len(key) == 0 {
		key = defaultKey
	}
	sum := sha256.Sum256(key)
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &sealer{aead: aead}, nil
}

func (s *sealer) seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

func (s *sealer) open(sealed []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n+s.aead.Overhead() {
		return nil, fmt.Errorf("sealed block too short (%d bytes)", len(sealed))
	}
	return s.aead.Open(nil, sealed[:n], sealed[n:], nil)
}
