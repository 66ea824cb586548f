package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/silentapp/silent/internal/imaging"
)

func decodeJSONBody(t *testing.T, r *http.Request, dst any) {
	t.Helper()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
}

func testImage() *imaging.CanonicalImage {
	return &imaging.CanonicalImage{
		Data:   []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10},
		Width:  imaging.TargetWidth,
		Height: imaging.TargetHeight,
	}
}

func newTestClient(url string) *Client {
	return New(Config{
		BaseURL:        url,
		RequestTimeout: 2 * time.Second,
		ProbeTimeout:   time.Second,
	})
}

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		in      string
		want    Language
		wantErr bool
	}{
		{"bisindo", LanguageBisindo, false},
		{"SIBI", LanguageSIBI, false},
		{" bisindo ", LanguageBisindo, false},
		{"asl", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseLanguage(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLanguage(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLanguage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPredict_Success(t *testing.T) {
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/translate" {
			t.Errorf("path = %q, want /api/translate", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		decodeJSONBody(t, r, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"prediction":"A","confidence":0.93,"dataset":"BISINDO","model_version":"v2"}`))
	}))
	defer ts.Close()

	mirror := true
	c := newTestClient(ts.URL)
	p, err := c.Predict(context.Background(), testImage(), LanguageBisindo, &mirror)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	if p.Letter != "A" || p.Confidence != 0.93 || p.Dataset != "BISINDO" {
		t.Errorf("prediction = %+v", p)
	}
	if p.NoHand() {
		t.Error("NoHand() = true for letter prediction")
	}
	if p.Raw["model_version"] != "v2" {
		t.Errorf("Raw metadata not preserved: %v", p.Raw)
	}

	if gotBody["language_type"] != "bisindo" {
		t.Errorf("language_type = %v", gotBody["language_type"])
	}
	if gotBody["mirror_mode"] != true {
		t.Errorf("mirror_mode = %v, want true", gotBody["mirror_mode"])
	}
	if s, ok := gotBody["image"].(string); !ok || s == "" {
		t.Error("image field missing or empty")
	}
}

func TestPredict_MirrorHintOmittedWhenNil(t *testing.T) {
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decodeJSONBody(t, r, &gotBody)
		w.Write([]byte(`{"success":true,"prediction":"B","confidence":0.5}`))
	}))
	defer ts.Close()

	if _, err := newTestClient(ts.URL).Predict(context.Background(), testImage(), LanguageSIBI, nil); err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if _, present := gotBody["mirror_mode"]; present {
		t.Error("mirror_mode present in payload, want omitted")
	}
}

func TestPredict_NoHandIsStructuralSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"prediction":"No hand detected","confidence":0.0}`))
	}))
	defer ts.Close()

	p, err := newTestClient(ts.URL).Predict(context.Background(), testImage(), LanguageBisindo, nil)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if !p.NoHand() {
		t.Error("NoHand() = false, want true")
	}
}

func TestPredict_BackendRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"image too small"}`))
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).Predict(context.Background(), testImage(), LanguageBisindo, nil)
	f := FailureOf(err)
	if f == nil || f.Kind != FailureBackendRejected {
		t.Fatalf("error = %v, want BackendRejected", err)
	}
	if f.Message != "image too small" {
		t.Errorf("Message = %q, want server message verbatim", f.Message)
	}
}

func TestPredict_RejectedWithoutBodyFallsBackToStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).Predict(context.Background(), testImage(), LanguageBisindo, nil)
	f := FailureOf(err)
	if f == nil || f.Kind != FailureBackendRejected {
		t.Fatalf("error = %v, want BackendRejected", err)
	}
	if f.Message != "HTTP 503" {
		t.Errorf("Message = %q, want HTTP 503", f.Message)
	}
}

func TestPredict_ProtocolError(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>oops</html>`},
		{"success without prediction", `{"success":true,"confidence":0.4}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			_, err := newTestClient(ts.URL).Predict(context.Background(), testImage(), LanguageBisindo, nil)
			if f := FailureOf(err); f == nil || f.Kind != FailureProtocol {
				t.Errorf("error = %v, want ProtocolError", err)
			}
		})
	}
}

func TestPredict_SuccessFalseIsRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"model not loaded"}`))
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).Predict(context.Background(), testImage(), LanguageBisindo, nil)
	f := FailureOf(err)
	if f == nil || f.Kind != FailureBackendRejected {
		t.Fatalf("error = %v, want BackendRejected", err)
	}
	if f.Message != "model not loaded" {
		t.Errorf("Message = %q", f.Message)
	}
}

func TestPredict_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{"success":true,"prediction":"A","confidence":0.9}`))
	}))
	defer ts.Close()

	c := New(Config{BaseURL: ts.URL, RequestTimeout: 50 * time.Millisecond})
	_, err := c.Predict(context.Background(), testImage(), LanguageBisindo, nil)
	if f := FailureOf(err); f == nil || f.Kind != FailureTimeout {
		t.Errorf("error = %v, want Timeout", err)
	}
}

func TestPredict_NetworkError(t *testing.T) {
	// Grab a port that nothing listens on.
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := newTestClient(url).Predict(context.Background(), testImage(), LanguageBisindo, nil)
	if f := FailureOf(err); f == nil || f.Kind != FailureNetwork {
		t.Errorf("error = %v, want NetworkError", err)
	}
}

func TestIsAvailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer ts.Close()

	if !newTestClient(ts.URL).IsAvailable(context.Background()) {
		t.Error("IsAvailable() = false for healthy backend")
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()
	if newTestClient(down.URL).IsAvailable(context.Background()) {
		t.Error("IsAvailable() = true for failing backend")
	}

	// Unreachable host swallows the error into false.
	gone := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := gone.URL
	gone.Close()
	if newTestClient(url).IsAvailable(context.Background()) {
		t.Error("IsAvailable() = true for unreachable backend")
	}
}

func TestModelInfo(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"bisindo_loaded":true,"sibi_loaded":false}`))
	}))
	defer ts.Close()

	info, err := newTestClient(ts.URL).ModelInfo(context.Background())
	if err != nil {
		t.Fatalf("ModelInfo() error = %v", err)
	}
	if info["bisindo_loaded"] != true {
		t.Errorf("info = %v", info)
	}
}

func TestPreloadModel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/load_model/sibi" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"success":true,"dataset":"sibi"}`))
	}))
	defer ts.Close()

	info, err := newTestClient(ts.URL).PreloadModel(context.Background(), LanguageSIBI)
	if err != nil {
		t.Fatalf("PreloadModel() error = %v", err)
	}
	if info["dataset"] != "sibi" {
		t.Errorf("info = %v", info)
	}

	if _, err := newTestClient(ts.URL).PreloadModel(context.Background(), Language("asl")); FailureOf(err) == nil {
		t.Error("PreloadModel accepted an unknown language")
	}
}

func TestPreloadModel_BackendRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).PreloadModel(context.Background(), LanguageBisindo)
	if f := FailureOf(err); f == nil || f.Kind != FailureBackendRejected {
		t.Errorf("error = %v, want BackendRejected", err)
	}
}
