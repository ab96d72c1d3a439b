package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/rxledger/internal/imaging"
	"github.com/erazemk/rxledger/internal/store"
)

// ContentHandler stores prescription and label scans by content hash.
type ContentHandler struct {
	DB *sql.DB
}

// Upload handles POST /api/content. The returned hash is what callers put
// in a prescription's or batch's content_hash.
func (h *ContentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)

	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	scan, err := imaging.Normalize(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := store.PutContent(r.Context(), h.DB, scan.Hash, scan.MIME, scan.Data)
	if err != nil {
		slog.Error("failed to store content", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to store content")
		return
	}

	user, _ := GetUser(r.Context())
	slog.Info("content stored", "hash", c.Hash, "size", c.Size, "credential", user.Credential)
	jsonResponse(w, http.StatusCreated, c)
}

// Get handles GET /api/content/{hash}.
func (h *ContentHandler) Get(w http.ResponseWriter, r *http.Request) {
	data, mime, err := store.GetContent(r.Context(), h.DB, r.PathValue("hash"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get content")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "content not found")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Write(data)
}
