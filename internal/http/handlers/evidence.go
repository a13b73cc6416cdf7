package handlers

import (
	"io"
	"net/http"
	"strings"
)

const maxEvidenceBytes = 10 << 20

var evidenceTypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/png":       {},
	"image/webp":      {},
	"application/pdf": {},
}

// EvidenceUpload stores a receipt or before/after photo and returns the URL to
// cite in a utilization or transparency record.
func (a *App) EvidenceUpload(w http.ResponseWriter, r *http.Request) {
	if a.Evidence == nil {
		a.error(w, http.StatusNotFound, "not_found", "evidence storage not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxEvidenceBytes+1<<10)
	if err := r.ParseMultipartForm(maxEvidenceBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart form")
		return
	}
	kind := strings.TrimSpace(r.FormValue("kind"))
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxEvidenceBytes+1))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "read file")
		return
	}
	if len(data) > maxEvidenceBytes {
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", "file exceeds 10MB")
		return
	}
	if _, ok := evidenceTypes[http.DetectContentType(data)]; !ok && !isPDF(data) {
		a.error(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "evidence must be an image or PDF")
		return
	}
	url, err := a.Evidence.Put(r.Context(), kind, header.Filename, data, a.now())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]string{"url": url, "kind": strings.ToLower(kind)})
}

func isPDF(data []byte) bool {
	return len(data) >= 5 && string(data[:5]) == "%PDF-"
}
