package host

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/julienschmidt/httprouter"
)

// contentDirs lists where page assets are looked up, first match wins.
// The page's own directory is skipped when the page name isn't a plain relative path.
func (h *Host) contentDirs() []string {
	dirs := []string{filepath.Join(h.info.Dir, "custom")}
	if page := h.window.Page(); page != "" && filepath.IsLocal(page) {
		dirs = append(dirs, filepath.Join(h.info.Dir, "content", page))
	}
	return append(dirs, h.info.Dir, filepath.Join(h.info.Dir, "backup"))
}

// content serves the current page's files to the window. It needs no token: the webview loads pages by URL.
func (h *Host) content(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	rel := strings.TrimPrefix(params.ByName("path"), "/")
	if rel == "" {
		rel = "index.html"
	}
	rel = filepath.FromSlash(rel)
	if !filepath.IsLocal(rel) {
		http.NotFound(w, r)
		return
	}
	for _, dir := range h.contentDirs() {
		if h.serveFile(w, r, filepath.Join(dir, rel)) {
			return
		}
	}
	h.logger.Debugw("no content found", "Path", rel)
	http.NotFound(w, r)
}

func (h *Host) serveFile(w http.ResponseWriter, r *http.Request, path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil || !fi.Mode().IsRegular() {
		return false
	}
	h.logger.Debugw("serving content", "Path", path, "Size", fi.Size())
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
	return true
}
