package http

import (
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/rs/zerolog"
)

// contentTypes maps the handful of extensions the web viewer ships.
// Anything else is served as plain text.
var contentTypes = map[string]string{
	".html": "text/html",
	".js":   "application/javascript",
	".css":  "text/css",
}

const defaultContentType = "text/plain"

type assetHandler struct {
	dir    string
	logger zerolog.Logger
}

func newAssetHandler(dir string, logger *zerolog.Logger) *assetHandler {
	return &assetHandler{
		dir:    dir,
		logger: logger.With().Str("component", "assets").Logger(),
	}
}

func (h *assetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Path
	if name == "/" {
		name = "/index.html"
	}
	// path.Clean on a rooted path strips any ".." segments, so the join below
	// cannot escape the asset dir.
	name = path.Clean("/" + name)

	data, err := os.ReadFile(filepath.Join(h.dir, filepath.FromSlash(name)))
	if err != nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	contentType, ok := contentTypes[path.Ext(name)]
	if !ok {
		contentType = defaultContentType
	}
	writeBytes(w, contentType, data, &h.logger)
}
