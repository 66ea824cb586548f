// Package gateway is the client for the remote sign-language inference
// backend. It issues exactly one request per prediction call and classifies
// every failure; retry is the caller's decision.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/silentapp/silent/internal/imaging"
	"github.com/silentapp/silent/internal/metrics"
)

// NoHandSentinel is the prediction the backend returns when no hand is
// visible. Structurally a success, but not a usable letter.
const NoHandSentinel = "No hand detected"

const userAgent = "SILENT-Client/1.0"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20

// Language selects which sign-language dataset the backend predicts with.
type Language string

const (
	LanguageBisindo Language = "bisindo"
	LanguageSIBI    Language = "sibi"
)

// Valid reports whether l is a known language selector.
func (l Language) Valid() bool {
	return l == LanguageBisindo || l == LanguageSIBI
}

// ParseLanguage converts a request string into a Language.
func ParseLanguage(s string) (Language, error) {
	l := Language(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown language %q", s)
	}
	return l, nil
}

// Prediction is the normalized success result of a backend call.
type Prediction struct {
	Letter     string
	Confidence float64
	Dataset    string
	Raw        map[string]any
}

// NoHand reports whether the backend saw no hand in the image.
func (p *Prediction) NoHand() bool {
	return p.Letter == NoHandSentinel
}

// Config holds the gateway settings. The client is explicitly constructed
// from it; there is no package-level instance and no init-time probing.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	ProbeTimeout   time.Duration
	// HTTPClient overrides the tuned default, mainly for tests.
	HTTPClient *http.Client
	Log        *logrus.Logger
}

// Client talks to the inference backend.
type Client struct {
	baseURL      string
	timeout      time.Duration
	probeTimeout time.Duration
	http         *http.Client
	log          *logrus.Entry
	metrics      *metrics.Metrics
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:          10,
				MaxIdleConnsPerHost:   2,
				IdleConnTimeout:       30 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: cfg.RequestTimeout,
			},
		}
	}
	log := cfg.Log
	if log == nil {
		log = logrus.New()
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		timeout:      cfg.RequestTimeout,
		probeTimeout: cfg.ProbeTimeout,
		http:         httpClient,
		log:          log.WithField("component", "gateway"),
		metrics:      metrics.Default,
	}
}

type translateRequest struct {
	Image        string `json:"image"`
	LanguageType string `json:"language_type"`
	MirrorMode   *bool  `json:"mirror_mode,omitempty"`
}

type translateResponse struct {
	Success    bool    `json:"success"`
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
	Dataset    string  `json:"dataset"`
	Error      string  `json:"error"`
}

// Predict sends one canonical image for translation. The returned error, when
// non-nil, is always a *Failure. mirror is a tri-state hint: nil omits the
// field entirely.
func (c *Client) Predict(ctx context.Context, img *imaging.CanonicalImage, lang Language, mirror *bool) (*Prediction, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, c.fail(&Failure{Kind: FailureProtocol, Message: "no image data to send"})
	}
	if !lang.Valid() {
		return nil, c.fail(&Failure{Kind: FailureProtocol, Message: fmt.Sprintf("unknown language %q", lang)})
	}

	payload := translateRequest{
		Image:        base64.StdEncoding.EncodeToString(img.Data),
		LanguageType: string(lang),
		MirrorMode:   mirror,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, c.fail(&Failure{Kind: FailureProtocol, Message: "encode request", Err: err})
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/translate", bytes.NewReader(body))
	if err != nil {
		return nil, c.fail(&Failure{Kind: FailureProtocol, Message: "build request", Err: err})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	c.metrics.PredictLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, c.fail(classifyTransport(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.fail(classifyTransport(err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		var structured struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &structured) == nil && structured.Error != "" {
			msg = structured.Error
		}
		return nil, c.fail(&Failure{Kind: FailureBackendRejected, Message: msg})
	}

	var tr translateResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, c.fail(&Failure{Kind: FailureProtocol, Message: "unexpected response shape", Err: err})
	}
	if !tr.Success {
		msg := tr.Error
		if msg == "" {
			msg = "backend reported failure"
		}
		return nil, c.fail(&Failure{Kind: FailureBackendRejected, Message: msg})
	}
	if tr.Prediction == "" {
		return nil, c.fail(&Failure{Kind: FailureProtocol, Message: "success response without prediction"})
	}

	var rawFields map[string]any
	_ = json.Unmarshal(raw, &rawFields)

	p := &Prediction{
		Letter:     tr.Prediction,
		Confidence: tr.Confidence,
		Dataset:    tr.Dataset,
		Raw:        rawFields,
	}
	if p.NoHand() {
		c.metrics.PredictionsTotal.WithLabelValues("no_hand").Inc()
	} else {
		c.metrics.PredictionsTotal.WithLabelValues("success").Inc()
	}
	c.log.WithFields(logrus.Fields{
		"prediction": p.Letter,
		"confidence": p.Confidence,
		"dataset":    p.Dataset,
	}).Debug("prediction received")
	return p, nil
}

// IsAvailable probes the backend health endpoint. It is for status display
// only: all errors collapse into false and it never panics.
func (c *Client) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

// ModelInfo fetches the backend's model status for the UI panel. Failures
// are classified the same way as Predict.
func (c *Client) ModelInfo(ctx context.Context) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/models", nil)
	if err != nil {
		return nil, c.fail(&Failure{Kind: FailureProtocol, Message: "build request", Err: err})
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.fail(classifyTransport(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.fail(classifyTransport(err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.fail(&Failure{Kind: FailureBackendRejected, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)})
	}

	var info map[string]any
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, c.fail(&Failure{Kind: FailureProtocol, Message: "unexpected response shape", Err: err})
	}
	return info, nil
}

// PreloadModel asks the backend to load the dataset's model ahead of the
// first prediction, so that prediction does not pay the load latency.
// Failures are classified the same way as Predict.
func (c *Client) PreloadModel(ctx context.Context, lang Language) (map[string]any, error) {
	if !lang.Valid() {
		return nil, c.fail(&Failure{Kind: FailureProtocol, Message: fmt.Sprintf("unknown language %q", lang)})
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/load_model/"+string(lang), nil)
	if err != nil {
		return nil, c.fail(&Failure{Kind: FailureProtocol, Message: "build request", Err: err})
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.fail(classifyTransport(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.fail(classifyTransport(err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.fail(&Failure{Kind: FailureBackendRejected, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)})
	}

	var info map[string]any
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, c.fail(&Failure{Kind: FailureProtocol, Message: "unexpected response shape", Err: err})
	}
	c.log.WithField("language", lang).Info("model preloaded")
	return info, nil
}

// fail logs and counts a classified failure before returning it.
func (c *Client) fail(f *Failure) *Failure {
	c.metrics.PredictionsTotal.WithLabelValues(string(f.Kind)).Inc()
	c.log.WithFields(logrus.Fields{"kind": f.Kind, "message": f.Message}).Warn("backend call failed")
	return f
}

// classifyTransport maps a transport-level error to Timeout or NetworkError.
func classifyTransport(err error) *Failure {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: FailureTimeout, Message: "server too slow", Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Failure{Kind: FailureTimeout, Message: "server too slow", Err: err}
	}
	return &Failure{Kind: FailureNetwork, Message: "cannot reach server", Err: err}
}
