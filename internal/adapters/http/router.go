package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/insurance-doc-classifier/internal/config"
	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
	"github.com/kirillkom/insurance-doc-classifier/internal/core/ports"
)

const defaultMaxUploadBytes = 32 << 20

// BatchRecorder observes accepted batches; the metrics package implements it.
type BatchRecorder interface {
	RecordBatch(service, action string, files int)
	RecordRejected(service, reason string)
}

type Router struct {
	batches   ports.BatchExecutor
	documents ports.DocumentClassifier
	queue     ports.BatchEnqueuer
	results   ports.ResultReader
	recorder  BatchRecorder

	maxUploadBytes int64
	rateLimitRPS   float64
	rateLimitBurst int
	maxInFlight    int
	queueWait      time.Duration
}

func NewRouter(
	cfg config.Config,
	batches ports.BatchExecutor,
	documents ports.DocumentClassifier,
	queue ports.BatchEnqueuer,
	results ports.ResultReader,
) *Router {
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	return &Router{
		batches:        batches,
		documents:      documents,
		queue:          queue,
		results:        results,
		maxUploadBytes: maxUpload,
		rateLimitRPS:   cfg.APIRateLimitRPS,
		rateLimitBurst: cfg.APIRateLimitBurst,
		maxInFlight:    cfg.APIMaxInFlight,
		queueWait:      time.Duration(cfg.APIQueueWaitMS) * time.Millisecond,
	}
}

func (rt *Router) WithRecorder(recorder BatchRecorder) *Router {
	rt.recorder = recorder
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/v1/classifications", rt.classifications)
	api.HandleFunc("/v1/classifications/references", rt.classifyReferences)
	api.HandleFunc("/v1/references", rt.listReferences)
	api.HandleFunc("/v1/references/enqueue", rt.enqueueReferences)
	api.HandleFunc("/v1/batches", rt.executeBatch)

	var guarded http.Handler = api
	guarded = backpressureMiddleware(guarded, rt.maxInFlight, rt.queueWait)
	guarded = rateLimitMiddleware(guarded, rt.rateLimitRPS, rt.rateLimitBurst, rt.onReject)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/v1/", guarded)
	return requestIDMiddleware(accessLogMiddleware(corsMiddleware(mux)))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) classifications(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if isMultipart(r) {
			rt.classifyMultipart(w, r)
			return
		}
		rt.classifyEncoded(w, r)
	case http.MethodGet:
		rt.listRecent(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
	}
}

func (rt *Router) classifyEncoded(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Files []domain.EncodedFile `json:"files"`
	}
	if err := rt.decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Files) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("No files provided"))
		return
	}
	rt.execute(w, r, domain.BatchRequest{Action: domain.ActionClassifyUploads, Files: req.Files})
}

func (rt *Router) classifyMultipart(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	if err := r.ParseMultipartForm(rt.maxUploadBytes); err != nil {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "parse multipart form", err))
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("No files provided"))
		return
	}

	docs := make([]domain.Document, 0, len(headers))
	for _, header := range headers {
		content, err := readPart(header)
		if err != nil {
			writeError(w, domain.WrapError(domain.ErrInvalidInput, "read multipart file", err))
			return
		}
		docs = append(docs, domain.NewDocument(header.Filename, content))
	}

	rt.recordBatch(string(domain.ActionClassifyUploads), len(docs))
	results := rt.documents.ClassifyDocuments(r.Context(), docs)
	writeSuccess(w, http.StatusOK, &domain.BatchResponse{
		Action:          domain.ActionClassifyUploads,
		TotalFiles:      len(docs),
		Classifications: results,
	})
}

func (rt *Router) classifyReferences(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}
	var req struct {
		References []domain.Reference `json:"references"`
	}
	if err := rt.decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.References) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("No references provided"))
		return
	}
	rt.execute(w, r, domain.BatchRequest{Action: domain.ActionClassifyReferences, References: req.References})
}

func (rt *Router) listReferences(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rt.execute(w, r, domain.BatchRequest{
		Action: domain.ActionListReferences,
		Prefix: r.URL.Query().Get("prefix"),
		Limit:  limit,
	})
}

func (rt *Router) enqueueReferences(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}
	if rt.queue == nil {
		writeError(w, domain.WrapError(domain.ErrCapabilityUnavailable, "enqueue references", errors.New("no queue configured")))
		return
	}
	var req struct {
		References []domain.Reference `json:"references"`
	}
	if err := rt.decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.References) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("No references provided"))
		return
	}

	batch := domain.BatchRequest{Action: domain.ActionClassifyReferences, References: req.References}
	if err := rt.queue.Enqueue(r.Context(), batch); err != nil {
		writeError(w, err)
		return
	}
	rt.recordBatch("enqueue", len(req.References))
	writeSuccess(w, http.StatusAccepted, map[string]int{"queued": len(req.References)})
}

func (rt *Router) executeBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}
	var req domain.BatchRequest
	if err := rt.decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	rt.execute(w, r, req)
}

func (rt *Router) listRecent(w http.ResponseWriter, r *http.Request) {
	if rt.results == nil {
		writeError(w, domain.WrapError(domain.ErrCapabilityUnavailable, "list results", errors.New("no result store configured")))
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	results, err := rt.results.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"results": results})
}

func (rt *Router) execute(w http.ResponseWriter, r *http.Request, req domain.BatchRequest) {
	resp, err := rt.batches.Execute(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	rt.recordBatch(string(req.Action), resp.TotalFiles)
	writeSuccess(w, http.StatusOK, resp)
}

func (rt *Router) decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	// Base64 inflates uploads by a third.
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes/3*4+4096)
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return domain.WrapError(domain.ErrInvalidInput, "decode request", fmt.Errorf("invalid json: %w", err))
	}
	return nil
}

func (rt *Router) recordBatch(action string, files int) {
	if rt.recorder != nil {
		rt.recorder.RecordBatch("api", action, files)
	}
}

func (rt *Router) onReject(reason string) {
	if rt.recorder != nil {
		rt.recorder.RecordRejected("api", reason)
	}
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data")
}

func readPart(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

func parseLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "parse limit", fmt.Errorf("limit must be a non-negative integer"))
	}
	return limit, nil
}

type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), errorBody(err.Error()))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
