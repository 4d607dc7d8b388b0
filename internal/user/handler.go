package user

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/getsentry/sentry-go"

	"accounts-api/internal/auth"
	"accounts-api/internal/media"
)

const uploadsPrefix = "/uploads/"

// ImageStore is the persistence surface the handler needs; *Repository
// implements it.
type ImageStore interface {
	AddImage(ctx context.Context, userID, url string) error
	RemoveImage(ctx context.Context, userID, url string) error
	ListImages(ctx context.Context, userID string) ([]string, error)
}

type Handler struct {
	repo    ImageStore
	storage *media.Storage
	logger  *slog.Logger
}

func NewHandler(repo ImageStore, storage *media.Storage, logger *slog.Logger) *Handler {
	return &Handler{repo: repo, storage: storage, logger: logger}
}

func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized: Token missing")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	name, err := h.saveUpload(file)
	if err != nil {
		switch {
		case errors.Is(err, media.ErrUnsupportedType):
			writeError(w, http.StatusBadRequest, "only jpeg, png, gif and webp images are accepted")
		case errors.Is(err, media.ErrTooLarge):
			writeError(w, http.StatusBadRequest, "image exceeds the size limit")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to store image")
		}
		return
	}

	imageURL := uploadsPrefix + name
	if err := h.repo.AddImage(r.Context(), identity.UserID, imageURL); err != nil {
		// The row never landed, so the file on disk is an orphan.
		if removeErr := h.storage.Delete(name); removeErr != nil {
			h.logger.Warn("orphan_upload_cleanup_failed", "name", name, "error", removeErr.Error())
		}

		if errors.Is(err, ErrUserNotFound) {
			writeError(w, http.StatusNotFound, ErrUserNotFound.Error())
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to attach image")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message":  "image uploaded successfully",
		"imageUrl": imageURL,
	})
}

func (h *Handler) saveUpload(file multipart.File) (string, error) {
	return h.storage.Save(file)
}

func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized: Token missing")
		return
	}

	name, err := url.PathUnescape(r.PathValue("imageName"))
	if err != nil || name == "" || strings.ContainsAny(name, "/\\") {
		writeError(w, http.StatusBadRequest, "invalid image name")
		return
	}

	if err := h.repo.RemoveImage(r.Context(), identity.UserID, uploadsPrefix+name); err != nil {
		if errors.Is(err, ErrImageNotFound) {
			writeError(w, http.StatusNotFound, ErrImageNotFound.Error())
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete image")
		return
	}

	// The database row is the source of truth; a leftover file only wastes
	// disk, so its removal is best effort.
	if err := h.storage.Delete(name); err != nil {
		h.logger.Warn("image_file_delete_failed", "name", name, "error", err.Error())
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "image deleted successfully"})
}

func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized: Token missing")
		return
	}

	images, err := h.repo.ListImages(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeError(w, http.StatusNotFound, ErrUserNotFound.Error())
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list images")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"images": images})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
