package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quizgen/internal/cache"
	"quizgen/internal/config"
	"quizgen/internal/model"
	"quizgen/internal/pipeline"
	"quizgen/internal/qg"
	"quizgen/internal/store"
	"quizgen/internal/tokenizer"
)

const testPassage = "Tokyo is the capital of Japan. It hosts the national government."

func newAPITokenizer() *tokenizer.WordLevel {
	return tokenizer.NewWordLevel([]string{
		"Tokyo", "is", "the", "capital", "of", "Japan.", "It", "hosts",
		"national", "government.", "government", "Osaka",
		"What", "Japan?", "Where", "Tokyo?", "host?", "does",
		"extract", "answers:", "generate", "question:", "questions:",
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func scriptReply(tok tokenizer.Tokenizer, texts ...string) model.ScriptedReply {
	out := make([][]int, len(texts))
	for i, s := range texts {
		out[i] = tok.Encode(s)
	}
	return model.ScriptedReply{Output: out}
}

func testConfig() config.Config {
	return config.Config{
		NumBeams:        2,
		MaxLength:       64,
		MaxLengthOutput: 16,
		WorkerCount:     1,
		MaxQueueSize:    4,
		MaxUploadBytes:  1 << 20,
		ResultCacheSize: 8,
		JobTTL:          time.Hour,
	}
}

type fixture struct {
	srv   *Server
	model *model.Scripted
	tok   *tokenizer.WordLevel
}

func newTestServer(t *testing.T, cfg config.Config, events *store.Store, replies ...model.ScriptedReply) *fixture {
	t.Helper()
	tok := newAPITokenizer()
	m := model.NewScripted(model.T5, replies...)
	gen := qg.New(tok, m, qg.Config{
		MaxLength:       cfg.MaxLength,
		MaxLengthOutput: cfg.MaxLengthOutput,
		Logger:          discardLogger(),
	})

	orch := pipeline.NewOrchestrator(cfg, gen, events, discardLogger())
	orch.Start(context.Background())
	t.Cleanup(func() { orch.Shutdown(context.Background()) })

	results, err := cache.New(cfg.ResultCacheSize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return &fixture{
		srv:   NewServer(gen, orch, results, events, discardLogger(), cfg),
		model: m,
		tok:   tok,
	}
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("unexpected error decoding %q: %v", rec.Body.String(), err)
	}
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, rec, &body)
	return body.Error
}

func TestHealth(t *testing.T) {
	f := newTestServer(t, testConfig(), nil)
	rec := doJSON(t, f.srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"status":"ok"}` {
		t.Errorf("unexpected body: %s", got)
	}
}

func TestRoot(t *testing.T) {
	f := newTestServer(t, testConfig(), nil)
	rec := doJSON(t, f.srv, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Message string `json:"message"`
	}
	decodeBody(t, rec, &body)
	if body.Message == "" {
		t.Error("expected a greeting message")
	}
}

func TestInfo(t *testing.T) {
	f := newTestServer(t, testConfig(), nil)
	rec := doJSON(t, f.srv, http.MethodGet, "/info", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Model           string `json:"model"`
		ModelType       string `json:"model_type"`
		MaxLength       int    `json:"max_length"`
		MaxLengthOutput int    `json:"max_length_output"`
	}
	decodeBody(t, rec, &body)
	if body.Model != "scripted" || body.ModelType != "t5" {
		t.Errorf("unexpected model identity: %+v", body)
	}
	if body.MaxLength != 64 || body.MaxLengthOutput != 16 {
		t.Errorf("unexpected budgets: %+v", body)
	}
}

func TestQuestionGenerationEmptyInput(t *testing.T) {
	f := newTestServer(t, testConfig(), nil)

	for _, input := range []string{"", "   ", "\n\t"} {
		rec := doJSON(t, f.srv, http.MethodPost, "/question_generation",
			map[string]string{"input_text": input})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("input %q: expected 400, got %d", input, rec.Code)
		}
		if msg := errorMessage(t, rec); msg != "Input text is empty string." {
			t.Errorf("input %q: unexpected error message %q", input, msg)
		}
	}
}

func TestQuestionGenerationInvalidJSON(t *testing.T) {
	f := newTestServer(t, testConfig(), nil)
	req := httptest.NewRequest(http.MethodPost, "/question_generation",
		strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestQuestionGenerationFullPassage(t *testing.T) {
	tok := newAPITokenizer()
	f := newTestServer(t, testConfig(), nil,
		scriptReply(tok, "Tokyo", "the national government"),
		scriptReply(tok, "What is the capital of Japan?", "What does Tokyo host?"),
	)

	rec := doJSON(t, f.srv, http.MethodPost, "/question_generation",
		map[string]string{"input_text": testPassage})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body generationResponse
	decodeBody(t, rec, &body)
	if len(body.QA) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(body.QA))
	}
	if body.QA[0].Question != "What is the capital of Japan?" || body.QA[0].Answer != "Tokyo" {
		t.Errorf("unexpected first pair: %+v", body.QA[0])
	}
	if body.QA[1].Answer != "the national government" {
		t.Errorf("unexpected second answer: %q", body.QA[1].Answer)
	}
}

func TestQuestionGenerationCachesFullPassage(t *testing.T) {
	tok := newAPITokenizer()
	f := newTestServer(t, testConfig(), nil,
		scriptReply(tok, "Tokyo", "the national government"),
		scriptReply(tok, "What is the capital of Japan?", "What does Tokyo host?"),
	)

	first := doJSON(t, f.srv, http.MethodPost, "/question_generation",
		map[string]string{"input_text": testPassage})
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", first.Code, first.Body.String())
	}
	if f.model.CallCount() != 2 {
		t.Fatalf("expected 2 model calls for two stages, got %d", f.model.CallCount())
	}

	// The reply queue is empty, so a second success proves the cache hit.
	second := doJSON(t, f.srv, http.MethodPost, "/question_generation",
		map[string]string{"input_text": testPassage})
	if second.Code != http.StatusOK {
		t.Fatalf("expected cached 200, got %d: %s", second.Code, second.Body.String())
	}
	if f.model.CallCount() != 2 {
		t.Errorf("expected no extra model calls, got %d", f.model.CallCount())
	}
	if first.Body.String() != second.Body.String() {
		t.Errorf("expected identical responses, got %s vs %s", first.Body.String(), second.Body.String())
	}
}

func TestQuestionGenerationHighlightMode(t *testing.T) {
	tok := newAPITokenizer()
	f := newTestServer(t, testConfig(), nil,
		scriptReply(tok, "Where is Tokyo?"),
	)

	rec := doJSON(t, f.srv, http.MethodPost, "/question_generation",
		map[string]string{"input_text": testPassage, "highlight": "Tokyo"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body generationResponse
	decodeBody(t, rec, &body)
	if len(body.QA) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(body.QA))
	}
	if body.QA[0].Question != "Where is Tokyo?" || body.QA[0].Answer != "Tokyo" {
		t.Errorf("unexpected pair: %+v", body.QA[0])
	}
}

func TestQuestionGenerationHighlightNotFound(t *testing.T) {
	f := newTestServer(t, testConfig(), nil)

	rec := doJSON(t, f.srv, http.MethodPost, "/question_generation",
		map[string]string{"input_text": testPassage, "highlight": "Kyoto"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if msg := errorMessage(t, rec); !strings.Contains(msg, "highlight span not found") {
		t.Errorf("unexpected error message: %q", msg)
	}
}

func TestQuestionGenerationAnswerNotFound(t *testing.T) {
	tok := newAPITokenizer()
	f := newTestServer(t, testConfig(), nil,
		scriptReply(tok, "Osaka", "Osaka"),
	)

	rec := doJSON(t, f.srv, http.MethodPost, "/question_generation",
		map[string]string{"input_text": testPassage})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if msg := errorMessage(t, rec); !strings.Contains(msg, "no answer candidates found") {
		t.Errorf("unexpected error message: %q", msg)
	}
}

func TestQuestionGenerationInternalError(t *testing.T) {
	f := newTestServer(t, testConfig(), nil)
	f.model.AddReply(model.ScriptedReply{Err: io.ErrUnexpectedEOF})

	rec := doJSON(t, f.srv, http.MethodPost, "/question_generation",
		map[string]string{"input_text": testPassage})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
	if msg := errorMessage(t, rec); msg != "internal error" {
		t.Errorf("expected opaque message, got %q", msg)
	}
}

func TestQuestionGenerationDummy(t *testing.T) {
	f := newTestServer(t, testConfig(), nil)

	rec := doJSON(t, f.srv, http.MethodPost, "/question_generation_dummy",
		map[string]string{"input_text": "anything at all"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body generationResponse
	decodeBody(t, rec, &body)
	if len(body.QA) != 2 {
		t.Fatalf("expected 2 canned pairs, got %d", len(body.QA))
	}
	if body.QA[0].Answer != "Tokyo" {
		t.Errorf("unexpected canned answer: %q", body.QA[0].Answer)
	}

	empty := doJSON(t, f.srv, http.MethodPost, "/question_generation_dummy",
		map[string]string{"input_text": " "})
	if empty.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", empty.Code)
	}
	if msg := errorMessage(t, empty); msg != "Input text is empty string." {
		t.Errorf("unexpected error message %q", msg)
	}
}

func multipartUpload(t *testing.T, srv *Server, filename string, content []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestUploadDocumentAndPoll(t *testing.T) {
	tok := newAPITokenizer()
	f := newTestServer(t, testConfig(), nil,
		scriptReply(tok, "Tokyo", "the national government"),
		scriptReply(tok, "What is the capital of Japan?", "What does Tokyo host?"),
	)

	rec := multipartUpload(t, f.srv, "notes.txt", []byte(testPassage), nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var accepted struct {
		JobID   string `json:"job_id"`
		Status  string `json:"status"`
		PollURL string `json:"poll_url"`
	}
	decodeBody(t, rec, &accepted)
	if accepted.JobID == "" || accepted.Status != "queued" {
		t.Fatalf("unexpected accept body: %+v", accepted)
	}
	if accepted.PollURL != "/api/documents/"+accepted.JobID {
		t.Errorf("unexpected poll url: %q", accepted.PollURL)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for job to finish")
		}
		poll := doJSON(t, f.srv, http.MethodGet, accepted.PollURL, nil)
		if poll.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", poll.Code)
		}
		var snap struct {
			Status   string      `json:"status"`
			Pairs    []qg.QAPair `json:"pairs"`
			Progress struct {
				TotalPassages  int `json:"total_passages"`
				PairsGenerated int `json:"pairs_generated"`
			} `json:"progress"`
		}
		decodeBody(t, poll, &snap)
		if pipeline.JobStatus(snap.Status).Terminal() {
			if snap.Status != string(pipeline.StatusCompleted) {
				t.Fatalf("expected completed job, got %q", snap.Status)
			}
			if len(snap.Pairs) != 2 || snap.Progress.PairsGenerated != 2 {
				t.Fatalf("expected 2 pairs, got %+v", snap)
			}
			if snap.Pairs[0].Answer != "Tokyo" {
				t.Errorf("unexpected first answer: %q", snap.Pairs[0].Answer)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestUploadDocumentUnsupportedType(t *testing.T) {
	f := newTestServer(t, testConfig(), nil)
	rec := multipartUpload(t, f.srv, "report.exe", []byte("binary"), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if msg := errorMessage(t, rec); !strings.Contains(msg, "unsupported file type: .exe") {
		t.Errorf("unexpected error message: %q", msg)
	}
}

func TestUploadDocumentTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxUploadBytes = 16
	f := newTestServer(t, cfg, nil)

	rec := multipartUpload(t, f.srv, "notes.txt", bytes.Repeat([]byte("a"), 64), nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDocumentStatusNotFound(t *testing.T) {
	f := newTestServer(t, testConfig(), nil)
	rec := doJSON(t, f.srv, http.MethodGet, "/api/documents/no-such-job", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAPIKeyProtectsDocumentRoutes(t *testing.T) {
	cfg := testConfig()
	cfg.QuizgenAPIKey = "secret"
	f := newTestServer(t, cfg, nil)

	rec := doJSON(t, f.srv, http.MethodGet, "/api/stats", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec2 := httptest.NewRecorder()
	f.srv.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec2.Code)
	}

	req3 := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req3.Header.Set("Authorization", "Bearer secret")
	rec3 := httptest.NewRecorder()
	f.srv.ServeHTTP(rec3, req3)
	if rec3.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", rec3.Code)
	}

	// Synchronous endpoints stay open.
	open := doJSON(t, f.srv, http.MethodPost, "/question_generation_dummy",
		map[string]string{"input_text": "open access"})
	if open.Code != http.StatusOK {
		t.Fatalf("expected open generation endpoint, got %d", open.Code)
	}
}

func TestStatsReportsEventsAndLatency(t *testing.T) {
	events, err := store.Open(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { events.Close() })

	tok := newAPITokenizer()
	f := newTestServer(t, testConfig(), events,
		scriptReply(tok, "Tokyo", "the national government"),
		scriptReply(tok, "What is the capital of Japan?", "What does Tokyo host?"),
	)

	gen := doJSON(t, f.srv, http.MethodPost, "/question_generation",
		map[string]string{"input_text": testPassage})
	if gen.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", gen.Code, gen.Body.String())
	}

	rec := doJSON(t, f.srv, http.MethodGet, "/api/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Totals struct {
			Events int64 `json:"events"`
			Pairs  int64 `json:"pairs"`
		} `json:"totals"`
		Recent      []store.Event   `json:"recent"`
		SyncLatency LatencySnapshot `json:"sync_latency"`
		QueueDepth  int             `json:"queue_depth"`
	}
	decodeBody(t, rec, &body)
	if body.Totals.Events != 1 || body.Totals.Pairs != 2 {
		t.Errorf("unexpected totals: %+v", body.Totals)
	}
	if len(body.Recent) != 1 || body.Recent[0].Kind != "sync" {
		t.Errorf("unexpected recent events: %+v", body.Recent)
	}
	if body.SyncLatency.Count != 1 {
		t.Errorf("expected 1 latency sample, got %d", body.SyncLatency.Count)
	}
	if body.QueueDepth != 0 {
		t.Errorf("expected empty queue, got %d", body.QueueDepth)
	}
}
