package httpadapter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/insurance-doc-classifier/internal/config"
	"github.com/kirillkom/insurance-doc-classifier/internal/core/domain"
)

type classifierFake struct {
	requests  []domain.BatchRequest
	documents []domain.Document
	enqueued  []domain.BatchRequest
	err       error
	queueErr  error
	recent    []domain.ClassificationResult
}

func (f *classifierFake) Execute(_ context.Context, req domain.BatchRequest) (*domain.BatchResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	resp := &domain.BatchResponse{Action: req.Action}
	switch req.Action {
	case domain.ActionClassifyUploads:
		for _, file := range req.Files {
			resp.Classifications = append(resp.Classifications, domain.NewResult(file.Filename, domain.LabelLossRun))
		}
	case domain.ActionClassifyReferences:
		for _, ref := range req.References {
			resp.Classifications = append(resp.Classifications, domain.NewResult(ref.Key, domain.LabelModSheet))
		}
	case domain.ActionListReferences:
		resp.References = []domain.ObjectInfo{{Key: "documents/a.pdf", Size: 3}}
	}
	resp.TotalFiles = len(resp.Classifications) + len(resp.References)
	return resp, nil
}

func (f *classifierFake) ClassifyDocuments(_ context.Context, docs []domain.Document) []domain.ClassificationResult {
	f.documents = append(f.documents, docs...)
	out := make([]domain.ClassificationResult, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.NewResult(doc.Filename, domain.LabelAcordForm))
	}
	return out
}

func (f *classifierFake) Enqueue(_ context.Context, req domain.BatchRequest) error {
	if f.queueErr != nil {
		return f.queueErr
	}
	f.enqueued = append(f.enqueued, req)
	return nil
}

func (f *classifierFake) ListRecent(context.Context, int) ([]domain.ClassificationResult, error) {
	return f.recent, nil
}

func newTestHandler(cfg config.Config) http.Handler {
	fake := &classifierFake{}
	return NewRouter(cfg, fake, fake, fake, fake).Handler()
}

func newRouterWithFake(fake *classifierFake) http.Handler {
	return NewRouter(config.Config{}, fake, fake, fake, fake).Handler()
}

type responseEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		TotalFiles      int                           `json:"total_files"`
		Classifications []domain.ClassificationResult `json:"classifications"`
		References      []domain.ObjectInfo           `json:"references"`
		Results         []domain.ClassificationResult `json:"results"`
		Queued          int                           `json:"queued"`
	} `json:"data"`
	Error string `json:"error"`
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) (*httptest.ResponseRecorder, responseEnvelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	var env responseEnvelope
	if res.Body.Len() > 0 {
		if err := json.Unmarshal(res.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response %q: %v", res.Body.String(), err)
		}
	}
	return res, env
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newTestHandler(config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestClassifyEncodedFiles(t *testing.T) {
	fake := &classifierFake{}
	handler := newRouterWithFake(fake)

	body := map[string]any{"files": []map[string]string{
		{"filename": "a.pdf", "content": base64.StdEncoding.EncodeToString([]byte("%PDF"))},
		{"filename": "b.csv", "content": base64.StdEncoding.EncodeToString([]byte("x,y"))},
	}}
	res, env := doJSON(t, handler, http.MethodPost, "/v1/classifications", body)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if !env.Success || env.Data.TotalFiles != 2 || len(env.Data.Classifications) != 2 {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if env.Data.Classifications[1].Filename != "b.csv" {
		t.Fatalf("results out of order: %+v", env.Data.Classifications)
	}
	if res.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS header")
	}
	if fake.requests[0].Action != domain.ActionClassifyUploads {
		t.Fatalf("unexpected action %q", fake.requests[0].Action)
	}
}

func TestClassifyWithoutFilesReturns400(t *testing.T) {
	handler := newTestHandler(config.Config{})

	res, env := doJSON(t, handler, http.MethodPost, "/v1/classifications", map[string]any{"files": []any{}})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if env.Error != "No files provided" {
		t.Fatalf("unexpected error %q", env.Error)
	}
}

func TestClassifyInvalidJSONReturns400(t *testing.T) {
	handler := newTestHandler(config.Config{})
	req := httptest.NewRequest(http.MethodPost, "/v1/classifications", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestClassifyMultipartFiles(t *testing.T) {
	fake := &classifierFake{}
	handler := newRouterWithFake(fake)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, content := range map[string]string{"acord.pdf": "%PDF"} {
		part, err := writer.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/classifications", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if len(fake.documents) != 1 || fake.documents[0].Filename != "acord.pdf" || string(fake.documents[0].Content) != "%PDF" {
		t.Fatalf("unexpected documents: %+v", fake.documents)
	}
	if fake.documents[0].MimeType != domain.MimePDF {
		t.Fatalf("expected content type from filename, got %q", fake.documents[0].MimeType)
	}
}

func TestClassifyReferencesAndListing(t *testing.T) {
	fake := &classifierFake{}
	handler := newRouterWithFake(fake)

	res, env := doJSON(t, handler, http.MethodPost, "/v1/classifications/references", map[string]any{
		"references": []map[string]string{{"key": "documents/a.xlsx"}},
	})
	if res.Code != http.StatusOK || env.Data.Classifications[0].Classification != domain.LabelModSheet {
		t.Fatalf("unexpected response %d: %+v", res.Code, env)
	}

	res, env = doJSON(t, handler, http.MethodGet, "/v1/references?prefix=documents/&limit=5", nil)
	if res.Code != http.StatusOK || len(env.Data.References) != 1 {
		t.Fatalf("unexpected listing %d: %+v", res.Code, env)
	}
	last := fake.requests[len(fake.requests)-1]
	if last.Prefix != "documents/" || last.Limit != 5 {
		t.Fatalf("query parameters not forwarded: %+v", last)
	}

	res, _ = doJSON(t, handler, http.MethodGet, "/v1/references?limit=abc", nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", res.Code)
	}
}

func TestEnqueueReferences(t *testing.T) {
	fake := &classifierFake{}
	handler := newRouterWithFake(fake)

	res, env := doJSON(t, handler, http.MethodPost, "/v1/references/enqueue", map[string]any{
		"references": []map[string]string{{"key": "documents/a.pdf"}, {"key": "documents/b.pdf"}},
	})
	if res.Code != http.StatusAccepted || env.Data.Queued != 2 {
		t.Fatalf("unexpected response %d: %+v", res.Code, env)
	}
	if len(fake.enqueued) != 1 || fake.enqueued[0].Action != domain.ActionClassifyReferences {
		t.Fatalf("unexpected enqueued batches: %+v", fake.enqueued)
	}

	fake.queueErr = domain.WrapError(domain.ErrTemporary, "nats publish", errors.New("disconnected"))
	res, _ = doJSON(t, handler, http.MethodPost, "/v1/references/enqueue", map[string]any{
		"references": []map[string]string{{"key": "documents/a.pdf"}},
	})
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for temporary queue failure, got %d", res.Code)
	}
}

func TestEnqueueWithoutQueueIsUnavailable(t *testing.T) {
	fake := &classifierFake{}
	handler := NewRouter(config.Config{}, fake, fake, nil, fake).Handler()

	res, _ := doJSON(t, handler, http.MethodPost, "/v1/references/enqueue", map[string]any{
		"references": []map[string]string{{"key": "documents/a.pdf"}},
	})
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestExecuteBatchMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: domain.WrapError(domain.ErrInvalidInput, "execute", errors.New("unknown action")), want: http.StatusBadRequest},
		{err: domain.WrapError(domain.ErrNotFound, "list", errors.New("bucket")), want: http.StatusNotFound},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		handler := newRouterWithFake(&classifierFake{err: tc.err})
		res, env := doJSON(t, handler, http.MethodPost, "/v1/batches", map[string]any{"action": "list_references"})
		if res.Code != tc.want {
			t.Fatalf("error %v: expected %d, got %d", tc.err, tc.want, res.Code)
		}
		if env.Error == "" {
			t.Fatalf("expected error message in response")
		}
	}
}

func TestListRecentResults(t *testing.T) {
	fake := &classifierFake{recent: []domain.ClassificationResult{domain.NewResult("a.pdf", domain.LabelLossRun)}}
	handler := newRouterWithFake(fake)

	res, env := doJSON(t, handler, http.MethodGet, "/v1/classifications?limit=1", nil)
	if res.Code != http.StatusOK || len(env.Data.Results) != 1 {
		t.Fatalf("unexpected response %d: %+v", res.Code, env)
	}
}

func TestPreflightRequest(t *testing.T) {
	handler := newTestHandler(config.Config{})
	req := httptest.NewRequest(http.MethodOptions, "/v1/classifications", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNoContent || res.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("unexpected preflight response %d %v", res.Code, res.Header())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestHandler(config.Config{})
	res, _ := doJSON(t, handler, http.MethodDelete, "/v1/classifications", nil)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}
