package data

import (
	"mime"
	"path"
	"strings"
)

// ContentType is the MIME type an object is uploaded with.
type ContentType string

const (
	ContentTypeTextPlain         ContentType = "text/plain"
	ContentTypeImagePNG          ContentType = "image/png"
	ContentTypeApplicationStream ContentType = "application/octet-stream"
	ContentTypeApplicationXDir   ContentType = "application/x-directory"
)

// ContentTypes maps lower-case extensions without the leading dot to MIME types.
type ContentTypes map[string]ContentType

// DefaultContentTypes covers the media commonly served straight from a bucket.
var DefaultContentTypes = ContentTypes{
	"txt":  ContentTypeTextPlain,
	"md":   ContentTypeTextPlain,
	"html": "text/html",
	"css":  "text/css",
	"js":   "text/javascript",
	"csv":  "text/csv",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  ContentTypeImagePNG,
	"gif":  "image/gif",
	"webp": "image/webp",
	"svg":  "image/svg+xml",
	"ico":  "image/x-icon",
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"ogg":  "audio/ogg",
	"weba": "audio/webm",
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mov":  "video/quicktime",
	"pdf":  "application/pdf",
	"zip":  "application/zip",
	"gz":   "application/gzip",
	"tar":  "application/x-tar",
	"iso":  "application/x-iso9660-image",
	"json": "application/json",
	"xml":  "application/xml",
	"woff": "font/woff",
}

// With returns a copy of c extended by overrides such as {".webp": "image/webp"}.
func (c ContentTypes) With(overrides map[string]string) ContentTypes {
	merged := make(ContentTypes, len(c)+len(overrides))
	for ext, ct := range c {
		merged[ext] = ct
	}
	for ext, ct := range overrides {
		merged[strings.ToLower(strings.TrimPrefix(ext, "."))] = ContentType(ct)
	}
	return merged
}

// Lookup returns the best-effort MIME type for the extension of key.
// Extensions missing from c are resolved through the system MIME table,
// unknown ones fall back to application/octet-stream.
func (c ContentTypes) Lookup(key string) ContentType {
	ext := strings.ToLower(path.Ext(key))
	if ext == "" {
		return ContentTypeApplicationStream
	}
	if ct, exists := c[ext[1:]]; exists {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ContentType(ct)
	}
	return ContentTypeApplicationStream
}

// GetMIMEType looks key up in DefaultContentTypes.
func GetMIMEType(key string) ContentType {
	return DefaultContentTypes.Lookup(key)
}

// String returns the MIME type as sent to the store.
func (c ContentType) String() string {
	return string(c)
}
