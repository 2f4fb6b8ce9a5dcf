package vision

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// DetectMediaType returns the media type of an image. declared is the
// type reported by the uploader and may be empty or wrong; the bytes win
// when they identify a known image type.
func DetectMediaType(data []byte, declared string) string {
	if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return "application/octet-stream"
	}
	return normalizeMediaType(mt)
}

// MediaTypeFromName guesses the media type from a file extension.
func MediaTypeFromName(name string) string {
	return normalizeMediaType(mime.TypeByExtension(strings.ToLower(filepath.Ext(name))))
}

// Supported reports whether mediaType is an accepted image type.
func Supported(mediaType string) bool {
	switch normalizeMediaType(mediaType) {
	case "image/jpeg", "image/png":
		return true
	}
	return false
}

func normalizeMediaType(mt string) string {
	mt = strings.ToLower(strings.TrimSpace(mt))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case "image/jpg", "image/pjpeg":
		return "image/jpeg"
	}
	return mt
}
