package m2pack

import (
	"path/filepath"

	"github.com/flaneur2020/m2pack/m2pack/container"
)

// CompressionKind is the storage kind chosen for an entry.
type CompressionKind = container.Compression

const (
	Zlib = container.CompressionZlib
	Png  = container.CompressionPng
	Usm  = container.CompressionUsm
)

// Classify maps a file extension to a compression kind. The match is
// case-sensitive; unknown extensions get def (Zlib when omitted).
func Classify(filePath string, def ...CompressionKind) CompressionKind {
	switch filepath.Ext(filePath) {
	case ".png":
		return Png
	case ".usm":
		return Usm
	case ".zlib":
		return Zlib
	}
	if len(def) > 0 {
		return def[0]
	}
	return Zlib
}
