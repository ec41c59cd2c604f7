// Package facesvc implements the HTTP client for the face detection and
// embedding service. The model runs out of process; this client uploads an
// image and receives detected faces with their embeddings.
package facesvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/scholarmaster/campus-attendance/internal/domain/recognition"
	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/pkg/circuitbreaker"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
	"github.com/scholarmaster/campus-attendance/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the face service client.
type Config struct {
	// BaseURL of the service, e.g. http://localhost:8500.
	BaseURL string

	// Timeout for a single HTTP request.
	Timeout time.Duration

	// MaxImageBytes rejects larger uploads before they hit the network.
	MaxImageBytes int64
}

// DefaultConfig returns defaults for a local service.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:       baseURL,
		Timeout:       10 * time.Second,
		MaxImageBytes: 10 << 20,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRE FORMAT
// ══════════════════════════════════════════════════════════════════════════════

// FaceDTO is one face in the service response.
type FaceDTO struct {
	BBox       []float64 `json:"bbox"`
	Embedding  []float32 `json:"embedding"`
	Confidence float64   `json:"det_score"`
}

// DetectResponse is the body of POST /detect.
type DetectResponse struct {
	Faces []FaceDTO `json:"faces"`
	Model string    `json:"model,omitempty"`
}

// ErrorResponse is returned by the service on 4xx/5xx.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

func (d FaceDTO) toDomain() (recognition.Face, error) {
	var box recognition.BBox
	copy(box[:], d.BBox)

	emb := recognition.Embedding(d.Embedding)
	if err := emb.Validate(); err != nil {
		return recognition.Face{}, err
	}
	return recognition.Face{BBox: box, Embedding: emb, Confidence: d.Confidence}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client implements recognition.FaceDetector over HTTP.
type Client struct {
	config     Config
	httpClient *http.Client
	retrier    retry.Policy
	breaker    *circuitbreaker.CircuitBreaker
	log        *logger.Logger
}

// NewClient creates a face service client.
func NewClient(config Config, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	log = log.With(logger.Component("face_service"))

	onChange := func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		retrier:    retry.FaceService(),
		breaker:    circuitbreaker.FaceServiceBreaker(onChange, circuitbreaker.WithIsFailure(shared.IsExternalService)),
		log:        log,
	}
}

// DetectFaces uploads the image and returns every detected face.
func (c *Client) DetectFaces(ctx context.Context, image []byte) ([]recognition.Face, error) {
	if len(image) == 0 {
		return nil, shared.WrapError("recognition", "DetectFaces", shared.ErrValidation, "image is empty", shared.ErrEmptyValue)
	}
	if c.config.MaxImageBytes > 0 && int64(len(image)) > c.config.MaxImageBytes {
		return nil, shared.NewDomainError("recognition", "DetectFaces", shared.ErrValueOutOfRange,
			fmt.Sprintf("image is %d bytes, limit %d", len(image), c.config.MaxImageBytes))
	}

	start := time.Now()
	var resp DetectResponse
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.detectOnce(ctx, image, &resp)
		})
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return nil, shared.WrapError("recognition", "DetectFaces", shared.ErrServiceUnavailable, "face service circuit open", err)
		}
		return nil, err
	}

	faces := make([]recognition.Face, 0, len(resp.Faces))
	for i, dto := range resp.Faces {
		f, err := dto.toDomain()
		if err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}
		faces = append(faces, f)
	}

	c.log.Debug("faces detected",
		logger.Int("faces", len(faces)),
		logger.Latency(time.Since(start)),
	)
	return faces, nil
}

// detectOnce performs one POST /detect. Network errors and 5xx are retryable.
func (c *Client) detectOnce(ctx context.Context, image []byte, out *DetectResponse) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fw, err := w.CreateFormFile("image", "frame.jpg")
	if err != nil {
		return retry.Permanent(err)
	}
	if _, err := fw.Write(image); err != nil {
		return retry.Permanent(err)
	}
	if err := w.Close(); err != nil {
		return retry.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/detect", &body)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Permanent(shared.WrapError("recognition", "Request", shared.ErrTimeout, "face service request cancelled", ctx.Err()))
		}
		return retry.Retryable(shared.WrapError("recognition", "Request", shared.ErrServiceUnavailable, "face service unreachable", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return retry.Retryable(shared.WrapError("recognition", "Request", shared.ErrExternalService, "read face service response", err))
	}

	switch {
	case resp.StatusCode >= 500:
		return retry.Retryable(shared.WrapError("recognition", "Request", shared.ErrExternalService,
			fmt.Sprintf("face service returned %d", resp.StatusCode), errors.New(detail(data))))
	case resp.StatusCode >= 400:
		return retry.Permanent(shared.WrapError("recognition", "Request", shared.ErrInvalidInput,
			fmt.Sprintf("face service rejected image (%d)", resp.StatusCode), errors.New(detail(data))))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return retry.Permanent(shared.WrapError("recognition", "Request", shared.ErrExternalService, "decode face service response", err))
	}
	return nil
}

// Health calls GET /health on the service.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("face service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("face service health: status %d", resp.StatusCode)
	}
	return nil
}

// BreakerState exposes the circuit state for health reporting.
func (c *Client) BreakerState() circuitbreaker.Snapshot {
	return c.breaker.Snapshot()
}

func detail(body []byte) string {
	var e ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Detail != "" {
		return e.Detail
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		s = "empty response"
	}
	return s
}

var _ recognition.FaceDetector = (*Client)(nil)
