package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"

	"github.com/arbiterlabs/arbiter/pkg/handlers"
	"github.com/arbiterlabs/arbiter/pkg/routes"
	"github.com/arbiterlabs/arbiter/pkg/storage"
)

// documentHandler exposes the blob store for assessment document uploads
// and downloads. Keys are chosen by the caller and referenced from
// assessment create requests.
type documentHandler struct {
	store         storage.System
	logger        *slog.Logger
	maxUploadSize int64
}

func newDocumentHandler(
	store storage.System,
	logger *slog.Logger,
	maxUploadSize int64,
) *documentHandler {
	return &documentHandler{
		store:         store,
		logger:        logger.With("handler", "documents"),
		maxUploadSize: maxUploadSize,
	}
}

func (h *documentHandler) routes() routes.Group {
	return routes.Group{
		Prefix: "/documents",
		Routes: []routes.Route{
			{Method: "PUT", Pattern: "/{key...}", Handler: h.upload},
			{Method: "GET", Pattern: "/{key...}", Handler: h.download},
			{Method: "DELETE", Pattern: "/{key...}", Handler: h.remove},
		},
	}
}

func (h *documentHandler) upload(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	body := http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	defer body.Close()

	if err := h.store.Upload(r.Context(), key, body, contentType); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, err)
			return
		}
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, map[string]string{"key": key})
}

func (h *documentHandler) download(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	reader, err := h.store.Download(r.Context(), key)
	if err != nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}
	defer reader.Close()

	w.Header().Set(
		"Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", path.Base(key)),
	)
	w.WriteHeader(http.StatusOK)
	io.Copy(w, reader)
}

func (h *documentHandler) remove(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	if err := h.store.Delete(r.Context(), key); err != nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
