package conversation

import (
	"path/filepath"
	"strings"
)

// fallbackMIMEType is used when an attachment's extension is unrecognized.
const fallbackMIMEType = "image/jpeg"

var mimeByExtension = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// mimeTypeFor guesses an image MIME type from a filename's extension.
// This is a compatibility heuristic, not a contract: the table is fixed and
// anything unknown falls back to a generic image type.
func mimeTypeFor(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if mimeType, ok := mimeByExtension[ext]; ok {
		return mimeType
	}
	return fallbackMIMEType
}
