package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/emotion-tracker/internal/inference"
	"github.com/spigell/emotion-tracker/internal/logger"
)

const (
	providerName   = "http"
	analyzePath    = "/analyze"
	contentType    = "application/json"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// Client calls a remote emotion service over HTTP.
type Client struct {
	URL        string
	HTTPClient *http.Client
	logger     *zap.Logger
}

// New creates a client for the service at baseURL.
func New(baseURL string, timeout time.Duration, log *zap.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("emotion service url is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		URL:        baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
		logger:     logger.WithInferenceFields(log, providerName, ""),
	}, nil
}

type analyzeRequest struct {
	ImageBase64 string `json:"imageBase64"`
	SessionID   string `json:"sessionId"`
}

// analyzePayload accepts both field spellings the service has used over time.
type analyzePayload struct {
	Dominant   string             `mapstructure:"dominant"`
	Emotion    string             `mapstructure:"emotion"`
	Confidence *float64           `mapstructure:"confidence"`
	Scores     map[string]float64 `mapstructure:"scores"`
	Emotions   map[string]float64 `mapstructure:"emotions"`
	Clarity    *float64           `mapstructure:"clarity"`
}

var _ inference.Analyzer = (*Client)(nil)

// Analyze posts the JPEG still to the service and returns the normalized result.
func (c *Client) Analyze(ctx context.Context, image []byte, sessionID string) (*inference.Result, error) {
	if len(image) == 0 {
		return nil, errors.New("image is required")
	}

	body, err := json.Marshal(analyzeRequest{
		ImageBase64: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image),
		SessionID:   sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+analyzePath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Request-ID", requestID)

	c.logger.Debug("analyze request",
		zap.String(logger.FieldRequestID, requestID),
		zap.Int("image_bytes", len(image)),
	)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read analyze response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &inference.StatusError{Code: resp.StatusCode, Status: resp.Status, Body: string(raw)}
	}

	result, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("analyze response",
		zap.String(logger.FieldRequestID, requestID),
		zap.String("dominant", result.Dominant),
		zap.Float64("confidence", result.Confidence),
	)
	return result, nil
}

// parseResponse accepts either the bare analysis object or the
// {"success": bool, "data": {...}} envelope.
func parseResponse(raw []byte) (*inference.Result, error) {
	var envelope map[string]any
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("analyze decode: %w", err)
	}

	data := envelope
	if ok, present := envelope["success"]; present {
		if success, _ := ok.(bool); !success {
			if msg, _ := envelope["error"].(string); msg != "" {
				return nil, fmt.Errorf("%w: %s", inference.ErrUnsuccessful, msg)
			}
			return nil, inference.ErrUnsuccessful
		}
		inner, isMap := envelope["data"].(map[string]any)
		if !isMap {
			return nil, fmt.Errorf("%w: missing data", inference.ErrUnsuccessful)
		}
		data = inner
	}

	var payload analyzePayload
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &payload,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(data); err != nil {
		return nil, fmt.Errorf("analyze payload: %w", err)
	}

	result := &inference.Result{
		Dominant: payload.Dominant,
		Scores:   payload.Scores,
		Clarity:  payload.Clarity,
	}
	if result.Dominant == "" {
		result.Dominant = payload.Emotion
	}
	if len(result.Scores) == 0 {
		result.Scores = payload.Emotions
	}
	if payload.Confidence != nil {
		result.Confidence = *payload.Confidence
	} else {
		result.Confidence = inference.DeriveConfidence(result.Scores)
	}

	return inference.Normalize(result)
}
