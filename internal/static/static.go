// Package static resolves request paths to files under a document root and
// writes them with a content type taken from the file extension.
package static

import (
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
)

const (
	// NotFoundBody is written for every miss or read error.
	NotFoundBody = "Error 404: resource not found."

	// DefaultIndex is served for "/" and the empty path.
	DefaultIndex = "index.html"

	// FallbackContentType is used for extensions missing from the table.
	FallbackContentType = "application/octet-stream"
)

// contentTypes maps lowercase file extensions to MIME types.
var contentTypes = map[string]string{
	".html":  "text/html",
	".htm":   "text/html",
	".css":   "text/css",
	".js":    "application/javascript",
	".mjs":   "application/javascript",
	".json":  "application/json",
	".map":   "application/json",
	".txt":   "text/plain",
	".xml":   "application/xml",
	".csv":   "text/csv",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
	".webp":  "image/webp",
	".wav":   "audio/wav",
	".mp3":   "audio/mpeg",
	".ogg":   "audio/ogg",
	".mp4":   "video/mp4",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".pdf":   "application/pdf",
	".wasm":  "application/wasm",
}

// ContentType returns the MIME type for name's extension, or
// [FallbackContentType] when the extension is unknown.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return FallbackContentType
}

// Responder serves files from a fixed root.
//
// There is no caching, no directory listing and no range support. Each
// request performs one existence check and one read; a file removed between
// the two degrades to a 404.
type Responder struct {
	root   fs.FS
	index  string
	logger *slog.Logger
}

// New creates a [Responder] over root. An empty index defaults to
// [DefaultIndex].
func New(root fs.FS, index string, logger *slog.Logger) *Responder {
	if index == "" {
		index = DefaultIndex
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Responder{
		root:   root,
		index:  index,
		logger: logger,
	}
}

// Resolve maps a request path to a name inside the root. The second result is
// false for paths that can never name a file, such as those containing "..".
func (s *Responder) Resolve(urlPath string) (string, bool) {
	if urlPath == "" || urlPath == "/" {
		return s.index, true
	}
	name := strings.TrimPrefix(urlPath, "/")
	if !fs.ValidPath(name) {
		return "", false
	}
	return name, true
}

// ServeHTTP implements http.Handler.
func (s *Responder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name, ok := s.Resolve(r.URL.Path)
	if !ok {
		s.notFound(w, r.URL.Path)
		return
	}

	info, err := fs.Stat(s.root, name)
	if err != nil || info.IsDir() {
		s.notFound(w, r.URL.Path)
		return
	}

	content, err := fs.ReadFile(s.root, name)
	if err != nil {
		s.logger.Warn("static read failed", "path", name, "error", err)
		s.notFound(w, r.URL.Path)
		return
	}

	w.Header().Set("Content-Type", ContentType(name))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(content); err != nil {
		s.logger.Error("failed to write static response", "path", name, "error", err)
	}
}

// notFound writes the fixed 404 response.
func (s *Responder) notFound(w http.ResponseWriter, urlPath string) {
	s.logger.Debug("static not found", "path", urlPath)
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusNotFound)
	if _, err := w.Write([]byte(NotFoundBody)); err != nil {
		s.logger.Error("failed to write not found response", "error", err)
	}
}
