package rest

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/italolelis/media_fetcher/internal/logctx"
	"github.com/italolelis/media_fetcher/internal/media"
	"github.com/italolelis/media_fetcher/internal/telemetry"
)

const (
	homeMessage = "YouTube Downloader API is running!"

	invalidBodyMessage = "Invalid JSON body"

	maxBodySize = 1 << 20 // 1MB
)

type getFormatsRequest struct {
	URL string `json:"url"`
}

type getFormatsResponse struct {
	Formats []media.FormatDescriptor `json:"formats"`
}

type downloadResponse struct {
	DownloadURL string  `json:"download_url"`
	TimeTaken   float64 `json:"time_taken"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type MediaHandler struct {
	lister         *media.Lister
	orchestrator   *media.Orchestrator
	library        *media.Library
	allowedOrigins []string
	telemetry      *telemetry.Telemetry
}

// NewMediaHandler creates the handler for the media endpoints. t may be nil.
func NewMediaHandler(
	lister *media.Lister,
	orchestrator *media.Orchestrator,
	library *media.Library,
	allowedOrigins []string,
	t *telemetry.Telemetry,
) *MediaHandler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	return &MediaHandler{
		lister:         lister,
		orchestrator:   orchestrator,
		library:        library,
		allowedOrigins: allowedOrigins,
		telemetry:      t,
	}
}

func (h *MediaHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{telemetry.RequestIDHeader, "Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/", h.HandleHome)
	r.Post("/get_formats", h.HandleGetFormats)
	r.Post("/download", h.HandleDownload)
	r.Get("/download_file/{filename}", h.HandleDownloadFile)

	return r
}

// HandleHome is the liveness endpoint.
func (h *MediaHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]string{"message": homeMessage})
}

// HandleGetFormats lists the video formats of a URL.
func (h *MediaHandler) HandleGetFormats(w http.ResponseWriter, r *http.Request) {
	var req getFormatsRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondJSON(w, r, http.StatusBadRequest, errorResponse{Error: invalidBodyMessage})

		return
	}

	formats, err := h.lister.ListFormats(r.Context(), req.URL)
	if err != nil {
		respondError(w, r, err)

		return
	}

	respondJSON(w, r, http.StatusOK, getFormatsResponse{Formats: formats})
}

// HandleDownload downloads a URL and answers with the retrieval link once
// the file is on disk.
func (h *MediaHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	var req media.DownloadRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondJSON(w, r, http.StatusBadRequest, errorResponse{Error: invalidBodyMessage})

		return
	}

	res, err := h.orchestrator.Download(r.Context(), req)
	if err != nil {
		respondError(w, r, err)

		return
	}

	respondJSON(w, r, http.StatusOK, downloadResponse{
		DownloadURL: res.DownloadURL,
		TimeTaken:   res.TimeTaken(),
	})
}

// HandleDownloadFile streams a stored file as an attachment.
func (h *MediaHandler) HandleDownloadFile(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	f, fi, err := h.library.Open(filenameToken(r))
	if err != nil {
		logger.DebugContext(r.Context(), "file not served", "err", errors.Unwrap(err))
		h.telemetry.RecordFileServed("not_found", 0)
		respondError(w, r, err)

		return
	}
	defer f.Close()

	logger.DebugContext(r.Context(), "serving file", "filename", fi.Name(), "size", humanize.Bytes(uint64(fi.Size())))

	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

	ww.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": fi.Name()}))
	http.ServeContent(ww, r, fi.Name(), fi.ModTime(), f)

	switch ww.Status() {
	case http.StatusOK, http.StatusPartialContent:
		h.telemetry.RecordFileServed("found", int64(ww.BytesWritten()))
	case http.StatusNotModified:
		h.telemetry.RecordFileServed("not_modified", 0)
	default:
		h.telemetry.RecordFileServed("rejected", 0)
	}
}

// filenameToken returns the filename path segment in escaped form. chi
// matches on RawPath when the request carried one and on the decoded Path
// otherwise, so the parameter is re-escaped in the latter case.
func filenameToken(r *http.Request) string {
	token := chi.URLParam(r, "filename")
	if r.URL.RawPath == "" {
		token = url.PathEscape(token)
	}

	return token
}

// decodeBody decodes a JSON body. An empty body decodes as an empty object.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		logctx.LoggerFromContext(r.Context()).WarnContext(r.Context(), "failed to decode request", "err", err)

		return err
	}

	return nil
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logctx.LoggerFromContext(r.Context())

	switch media.KindOf(err) {
	case media.KindValidation:
		respondJSON(w, r, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case media.KindNotFound:
		respondJSON(w, r, http.StatusNotFound, errorResponse{Error: "File not found"})
	default:
		logger.ErrorContext(r.Context(), "failed to handle request", "path", r.URL.Path, "err", err)
		respondJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "Unexpected error: " + err.Error()})
	}
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "failed to encode response", "err", err)
	}
}
