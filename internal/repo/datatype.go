package repo

import (
	"path/filepath"
	"strings"

	"github.com/oxenhq/oxen-core/internal/merkle"
)

// textExtensions, tabularExtensions, etc. classify a file's EntryDataType
// from its extension.
var (
	textExtensions = map[string]bool{
		".txt": true, ".md": true, ".rst": true, ".json": true, ".yaml": true,
		".yml": true, ".toml": true, ".xml": true, ".html": true, ".css": true,
		".go": true, ".py": true, ".js": true, ".ts": true, ".rs": true, ".c": true,
		".h": true, ".cpp": true, ".java": true, ".sh": true, ".sql": true,
	}
	tabularExtensions = map[string]bool{
		".csv": true, ".tsv": true, ".parquet": true, ".arrow": true,
	}
	imageExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".webp": true,
	}
	videoExtensions = map[string]bool{
		".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true,
	}
	audioExtensions = map[string]bool{
		".mp3": true, ".wav": true, ".flac": true, ".ogg": true,
	}
)

// sniffDataType classifies a path by extension, falling back to Binary
// for anything unrecognised.
func sniffDataType(relPath string) merkle.EntryDataType {
	ext := strings.ToLower(filepath.Ext(relPath))
	switch {
	case textExtensions[ext]:
		return merkle.DataTypeText
	case tabularExtensions[ext]:
		return merkle.DataTypeTabular
	case imageExtensions[ext]:
		return merkle.DataTypeImage
	case videoExtensions[ext]:
		return merkle.DataTypeVideo
	case audioExtensions[ext]:
		return merkle.DataTypeAudio
	default:
		return merkle.DataTypeBinary
	}
}
