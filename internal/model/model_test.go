package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"quizgen/internal/tokenizer"
)

func TestParseModelType(t *testing.T) {
	tests := []struct {
		in   string
		want ModelType
	}{
		{"t5", T5},
		{"T5", T5},
		{"mt5", MT5},
		{"bart", BART},
		{"MBART", MBART},
	}
	for _, tt := range tests {
		got, err := ParseModelType(tt.in)
		if err != nil {
			t.Fatalf("ParseModelType(%q): unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseModelType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseModelTypeUnknown(t *testing.T) {
	_, err := ParseModelType("gpt2")
	if err == nil {
		t.Fatal("expected error for unknown model type")
	}
	if !strings.Contains(err.Error(), "unsupported model type: gpt2") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestUsesPrefix(t *testing.T) {
	tests := []struct {
		typ  ModelType
		want bool
	}{
		{T5, true},
		{MT5, true},
		{BART, false},
		{MBART, false},
	}
	for _, tt := range tests {
		if got := tt.typ.UsesPrefix(); got != tt.want {
			t.Errorf("%s.UsesPrefix() = %v, want %v", tt.typ, got, tt.want)
		}
	}
}

func TestScriptedRepliesInOrder(t *testing.T) {
	m := NewScripted(T5,
		ScriptedReply{Output: [][]int{{0, 3, 1}}},
		ScriptedReply{Output: [][]int{{0, 4, 1}}},
	)

	first, err := m.Generate(context.Background(), GenerateRequest{InputIDs: [][]int{{3, 1}}, NumBeams: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, [][]int{{0, 3, 1}}) {
		t.Errorf("first reply = %v", first)
	}

	second, err := m.Generate(context.Background(), GenerateRequest{InputIDs: [][]int{{4, 1}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(second, [][]int{{0, 4, 1}}) {
		t.Errorf("second reply = %v", second)
	}

	if m.CallCount() != 2 {
		t.Errorf("CallCount = %d, want 2", m.CallCount())
	}
	if m.GenerateCalls[0].NumBeams != 4 {
		t.Errorf("recorded NumBeams = %d, want 4", m.GenerateCalls[0].NumBeams)
	}

	if _, err := m.Generate(context.Background(), GenerateRequest{}); err == nil {
		t.Fatal("expected error when reply queue is empty")
	}
}

func TestScriptedReplyError(t *testing.T) {
	wantErr := errors.New("backend down")
	m := NewScripted(T5, ScriptedReply{Err: wantErr})

	if _, err := m.Generate(context.Background(), GenerateRequest{}); !errors.Is(err, wantErr) {
		t.Errorf("expected scripted error, got %v", err)
	}
}

func newEchoTokenizer() *tokenizer.WordLevel {
	return tokenizer.NewWordLevel([]string{"Tokyo", "is", "the", "capital", "of", "Japan."})
}

func TestLocalGenerateEchoesInput(t *testing.T) {
	tok := newEchoTokenizer()
	m := NewLocal(tok, T5)

	enc := tok.EncodePlus("Tokyo is the capital of Japan.", tokenizer.EncodeOptions{})
	out, err := m.Generate(context.Background(), GenerateRequest{
		InputIDs:      [][]int{enc.InputIDs},
		AttentionMask: [][]int{enc.AttentionMask},
		MaxLength:     12,
		NumBeams:      2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d output rows, want 1", len(out))
	}

	got := tok.Decode(out[0], true)
	if got != "Tokyo is the capital of Japan." {
		t.Errorf("decoded output = %q", got)
	}

	again, err := m.Generate(context.Background(), GenerateRequest{
		InputIDs:      [][]int{enc.InputIDs},
		AttentionMask: [][]int{enc.AttentionMask},
		MaxLength:     12,
		NumBeams:      2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(out, again) {
		t.Errorf("generation is not deterministic: %v vs %v", out, again)
	}
}

func TestLocalGenerateRespectsMaxLength(t *testing.T) {
	tok := newEchoTokenizer()
	m := NewLocal(tok, T5)

	ids := tok.Encode("Tokyo is the capital of Japan.")
	out, err := m.Generate(context.Background(), GenerateRequest{
		InputIDs:  [][]int{ids},
		MaxLength: 4,
		NumBeams:  1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out[0]) > 4 {
		t.Errorf("output length %d exceeds max length 4: %v", len(out[0]), out[0])
	}
	if out[0][len(out[0])-1] != tok.EOSID() {
		t.Errorf("output does not end with eos: %v", out[0])
	}
}

func TestLocalBeamWidthChangesResult(t *testing.T) {
	tok := tokenizer.NewWordLevel([]string{"alpha", "beta", "gamma"})
	m := NewLocal(tok, T5)

	alpha := tok.IDFor("alpha")
	beta := tok.IDFor("beta")
	gamma := tok.IDFor("gamma")

	// A locally strong first step that dead-ends against a weaker first
	// step with strong continuations. Greedy takes the dead end; a wider
	// beam recovers the better-normalized path.
	table := map[int]map[int]int{
		tok.PadID(): {alpha: 3, beta: 2},
		beta:        {gamma: 5},
		gamma:       {tok.EOSID(): 5},
	}

	greedy := tok.Decode(m.beamSearch(table, 8, 1), true)
	if greedy != "alpha" {
		t.Errorf("greedy decode = %q, want %q", greedy, "alpha")
	}

	wide := tok.Decode(m.beamSearch(table, 8, 2), true)
	if wide != "beta gamma" {
		t.Errorf("beam decode = %q, want %q", wide, "beta gamma")
	}
}

func TestLocalForward(t *testing.T) {
	tok := newEchoTokenizer()
	m := NewLocal(tok, T5)

	inputs := tok.Encode("Tokyo is the capital of Japan.")
	labels := tok.Encode("Tokyo is")

	res, err := m.Forward(context.Background(), ForwardRequest{
		InputIDs: [][]int{inputs},
		Labels:   [][]int{labels},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Loss <= 0 {
		t.Errorf("loss = %v, want > 0", res.Loss)
	}
	if len(res.Logits) != 1 || len(res.Logits[0]) != len(labels) {
		t.Fatalf("logits shape = %dx%d, want 1x%d", len(res.Logits), len(res.Logits[0]), len(labels))
	}
	if len(res.Logits[0][0]) != tok.VocabSize() {
		t.Errorf("vocab dimension = %d, want %d", len(res.Logits[0][0]), tok.VocabSize())
	}
}

func newModelServer(t *testing.T, generate http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/model", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Card{
			Name:      "t5-small-qg",
			ModelType: "t5",
			VocabSize: 32100,
			MaxLength: 512,
		})
	})
	if generate != nil {
		mux.HandleFunc("POST /v1/generate", generate)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientGenerate(t *testing.T) {
	var gotAuth string
	var gotBody generateBody
	srv := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(generateResponse{OutputIDs: [][]int{{0, 5, 1}}})
	})

	c, err := Connect(context.Background(), ClientConfig{
		BaseURL: srv.URL,
		APIKey:  "secret",
		Name:    "t5-small-qg",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Type() != T5 {
		t.Errorf("Type = %q, want t5", c.Type())
	}
	if c.CardInfo().VocabSize != 32100 {
		t.Errorf("VocabSize = %d, want 32100", c.CardInfo().VocabSize)
	}

	out, err := c.Generate(context.Background(), GenerateRequest{
		InputIDs:      [][]int{{3, 4, 1}},
		AttentionMask: [][]int{{1, 1, 1}},
		MaxLength:     32,
		NumBeams:      4,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(out, [][]int{{0, 5, 1}}) {
		t.Errorf("output = %v", out)
	}

	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody.Model != "t5-small-qg" || gotBody.NumBeams != 4 || gotBody.MaxLength != 32 {
		t.Errorf("request body = %+v", gotBody)
	}
	if !reflect.DeepEqual(gotBody.AttentionMask, [][]float64{{1, 1, 1}}) {
		t.Errorf("attention mask on the wire = %v", gotBody.AttentionMask)
	}
}

func TestClientGenerateCountMismatch(t *testing.T) {
	srv := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{OutputIDs: [][]int{{0, 1}}})
	})

	c, err := Connect(context.Background(), ClientConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = c.Generate(context.Background(), GenerateRequest{InputIDs: [][]int{{3, 1}, {4, 1}}})
	if err == nil || !strings.Contains(err.Error(), "returned 1 sequences for 2 inputs") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestClientGenerateStatusErrors(t *testing.T) {
	status := http.StatusBadRequest
	srv := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad input", status)
	})

	c, err := Connect(context.Background(), ClientConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = c.Generate(context.Background(), GenerateRequest{InputIDs: [][]int{{3, 1}}})
	if err == nil || !strings.Contains(err.Error(), "model api status 400") {
		t.Errorf("unexpected error: %v", err)
	}

	status = http.StatusServiceUnavailable
	_, err = c.Generate(context.Background(), GenerateRequest{InputIDs: [][]int{{3, 1}}})
	var retryErr *RetryableError
	if !errors.As(err, &retryErr) {
		t.Fatalf("expected retryable error, got %v", err)
	}
	if retryErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d", retryErr.StatusCode)
	}
}

func TestConnectUnsupportedModelType(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/model", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Card{Name: "gpt2-medium", ModelType: "gpt2"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := Connect(context.Background(), ClientConfig{BaseURL: srv.URL})
	if err == nil || !strings.Contains(err.Error(), "unsupported model type") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConnectNonRetryableFailsFast(t *testing.T) {
	hits := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/model", func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, fmt.Sprintf("no such model, hit %d", hits), http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := Connect(context.Background(), ClientConfig{BaseURL: srv.URL, Name: "missing"})
	if err == nil || !strings.Contains(err.Error(), "model api status 404") {
		t.Errorf("unexpected error: %v", err)
	}
	if hits != 1 {
		t.Errorf("card endpoint hit %d times, want 1", hits)
	}
}
