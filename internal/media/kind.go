package media

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind classifies a target file.
type Kind string

const (
	KindImage   Kind = "image"
	KindVideo   Kind = "video"
	KindUnknown Kind = "unknown"
)

var (
	imageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".bmp": true}
	videoExtensions = map[string]bool{".mp4": true, ".mov": true, ".mkv": true, ".avi": true, ".webm": true, ".m4v": true}
)

// DetectKind sniffs the file content and falls back to the extension
// when the content is not recognized.
func DetectKind(path string) Kind {
	if mt, err := mimetype.DetectFile(path); err == nil {
		for m := mt; m != nil; m = m.Parent() {
			switch {
			case strings.HasPrefix(m.String(), "image/"):
				return KindImage
			case strings.HasPrefix(m.String(), "video/"):
				return KindVideo
			}
		}
	}
	return KindFromExtension(path)
}

// KindFromExtension classifies path by its extension only.
func KindFromExtension(path string) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case imageExtensions[ext]:
		return KindImage
	case videoExtensions[ext]:
		return KindVideo
	default:
		return KindUnknown
	}
}
