// Package asr implements the speech transcription client and the background
// scribe that turns uploaded lecture audio into buffered transcript text.
package asr

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

	"github.com/scholarmaster/campus-attendance/internal/domain/shared"
	"github.com/scholarmaster/campus-attendance/pkg/circuitbreaker"
	"github.com/scholarmaster/campus-attendance/pkg/logger"
	"github.com/scholarmaster/campus-attendance/pkg/retry"
)

// Segment is one timed piece of a transcript.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the response of POST /transcribe.
type Transcript struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// Text joins segment texts with single spaces.
func (t Transcript) Text() string {
	parts := make([]string, 0, len(t.Segments))
	for _, s := range t.Segments {
		if txt := strings.TrimSpace(s.Text); txt != "" {
			parts = append(parts, txt)
		}
	}
	return strings.Join(parts, " ")
}

// Client calls the transcription service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retrier    retry.Policy
	breaker    *circuitbreaker.CircuitBreaker
	log        *logger.Logger
}

// NewClient creates a transcription client.
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	log = log.With(logger.Component("transcription"))

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		retrier:    retry.Transcription(),
		breaker: circuitbreaker.TranscriptionBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}, circuitbreaker.WithIsFailure(shared.IsExternalService)),
		log: log,
	}
}

// Transcribe uploads one audio chunk.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (Transcript, error) {
	if len(audio) == 0 {
		return Transcript{}, shared.NewDomainError("transcription", "Transcribe", shared.ErrEmptyValue, "audio is empty")
	}
	if filename == "" {
		filename = "chunk.wav"
	}

	var out Transcript
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.transcribeOnce(ctx, audio, filename, &out)
		})
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return Transcript{}, shared.WrapError("transcription", "Transcribe", shared.ErrServiceUnavailable, "transcription circuit open", err)
	}
	return out, err
}

func (c *Client) transcribeOnce(ctx context.Context, audio []byte, filename string, out *Transcript) error {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return retry.Permanent(err)
	}
	if _, err := fw.Write(audio); err != nil {
		return retry.Permanent(err)
	}
	if err := w.Close(); err != nil {
		return retry.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", &b)
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Permanent(shared.WrapError("transcription", "Request", shared.ErrTimeout, "transcription cancelled", ctx.Err()))
		}
		return retry.Retryable(shared.WrapError("transcription", "Request", shared.ErrServiceUnavailable, "transcription service unreachable", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		e := shared.WrapError("transcription", "Request", shared.ErrExternalService,
			fmt.Sprintf("asr %s", resp.Status), errors.New(strings.TrimSpace(string(body))))
		if resp.StatusCode >= 500 {
			return retry.Retryable(e)
		}
		e.Kind = shared.ErrInvalidInput
		return retry.Permanent(e)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Permanent(shared.WrapError("transcription", "Request", shared.ErrExternalService, "asr decode", err))
	}
	return nil
}
