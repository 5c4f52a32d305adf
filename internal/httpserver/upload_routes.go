package httpserver

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"chatup/internal/media"
)

// UploadRoutes returns a sub-router mounted at /api/uploads:
// POST / stores a multipart "file" field and returns its URL, GET /{filename}
// serves stored files. Only the POST needs authentication.
func UploadRoutes(host *media.LocalHost, auth func(http.Handler) http.Handler, log zerolog.Logger) chi.Router {
	r := chi.NewRouter()

	r.With(auth).Post("/", func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeFail(w, http.StatusBadRequest, "missing file")
			return
		}
		defer file.Close()

		url, err := host.Save(r.Context(), file)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeOK(w, http.StatusCreated, envelope{"url": url})
	})

	r.Get("/{filename}", func(w http.ResponseWriter, r *http.Request) {
		filename := chi.URLParam(r, "filename")
		// Prevent path traversal by cleaning the path and not allowing separators.
		if filename == "" || filepath.Base(filename) != filename {
			writeFail(w, http.StatusBadRequest, "invalid filename")
			return
		}
		http.ServeFile(w, r, filepath.Join(host.Dir(), filename))
	})

	return r
}
