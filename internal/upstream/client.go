// Package upstream talks to the game backend cloud-script endpoint: it
// validates linked credentials and injects liveries into game accounts.
package upstream

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"liverymarket/internal/config"
	"liverymarket/internal/infrastructure/metrics"

	"github.com/sirupsen/logrus"
)

// Protocol constants of the game client build the backend expects. They are
// sent byte for byte; change them only when the upstream contract changes.
const (
	queryString      = "?sdk=UnitySDK-2.212.250428&engine=6000.1.5f1&platform=Android"
	headerUserAgent  = "UnityPlayer/6000.1.5f1 (UnityWebRequest/1.0, libcurl/8.10.1-DEV)"
	headerEncoding   = "deflate, gzip"
	headerSDK        = "UnitySDK-2.212.250428"
	headerUnity      = "6000.1.5f1"
	headerErrSuccess = "true"
)

// Cloud-script function names.
const (
	FunctionGetUserData  = "GetUserData"
	FunctionGrantItems   = "ExecuteGrantItems"
	FunctionUploadCustom = "UploadCustomDataWithItem"
)

const maxLoggedBody = 512

// Client is safe for concurrent use. It keeps no per-call state.
type Client struct {
	endpoint           string
	httpClient         *http.Client
	stabilizationDelay time.Duration
	logger             *logrus.Logger
}

func NewClient(cfg *config.UpstreamConfig, logger *logrus.Logger) *Client {
	return &Client{
		endpoint: cfg.BaseURL + queryString,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		stabilizationDelay: cfg.StabilizationDelay,
		logger:             logger,
	}
}

type cloudScriptRequest struct {
	CustomTags              map[string]string `json:"CustomTags"`
	FunctionName            string            `json:"FunctionName"`
	FunctionParameter       any               `json:"FunctionParameter"`
	GeneratePlayStreamEvent bool              `json:"GeneratePlayStreamEvent"`
}

type cloudScriptResponse struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
	Data   struct {
		PlayFabID      string          `json:"PlayFabId"`
		FunctionName   string          `json:"FunctionName"`
		FunctionResult json.RawMessage `json:"FunctionResult"`
		Error          *struct {
			Error   string `json:"Error"`
			Message string `json:"Message"`
		} `json:"Error"`
	} `json:"data"`
}

// callResult is a completed HTTP exchange. A non-nil error from execute means
// no response was received at all.
type callResult struct {
	status int
	body   []byte
}

func (r *callResult) ok() bool {
	return r.status == http.StatusOK
}

func (r *callResult) decode() (*cloudScriptResponse, error) {
	var resp cloudScriptResponse
	if err := json.Unmarshal(r.body, &resp); err != nil {
		return nil, fmt.Errorf("decode cloud-script response: %w", err)
	}
	return &resp, nil
}

// execute posts one cloud-script call. Transport failures come back as
// ErrTimeout or ErrNetwork.
func (c *Client) execute(ctx context.Context, credential, function string, params any) (*callResult, error) {
	payload, err := json.Marshal(cloudScriptRequest{
		FunctionName:      function,
		FunctionParameter: params,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", function, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", function, err)
	}
	req.Header.Set("User-Agent", headerUserAgent)
	req.Header.Set("Accept-Encoding", headerEncoding)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-ReportErrorAsSuccess", headerErrSuccess)
	req.Header.Set("X-PlayFabSDK", headerSDK)
	req.Header.Set("X-Authorization", credential)
	req.Header.Set("X-Unity-Version", headerUnity)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamLatency.WithLabelValues(function).Observe(time.Since(start).Seconds())
	if err != nil {
		kind := classifyTransport(err)
		metrics.UpstreamRequests.WithLabelValues(function, resultLabel(kind)).Inc()
		c.logger.WithFields(logrus.Fields{
			"function": function,
			"error":    err.Error(),
		}).Warn("cloud-script call failed")
		return nil, kind
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		kind := classifyTransport(err)
		metrics.UpstreamRequests.WithLabelValues(function, resultLabel(kind)).Inc()
		return nil, kind
	}

	result := &callResult{status: resp.StatusCode, body: body}
	if result.ok() {
		metrics.UpstreamRequests.WithLabelValues(function, "ok").Inc()
	} else {
		metrics.UpstreamRequests.WithLabelValues(function, "http_error").Inc()
	}
	c.logger.WithFields(logrus.Fields{
		"function": function,
		"status":   resp.StatusCode,
		"body":     truncate(body),
	}).Debug("cloud-script response")
	return result, nil
}

// readBody reads the response, inflating gzip bodies: the fixed
// Accept-Encoding header disables the transport's transparent decoding.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.ReadCloser
	var err error
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		reader, err = gzip.NewReader(resp.Body)
	case "deflate":
		reader, err = zlib.NewReader(resp.Body)
	default:
		return io.ReadAll(resp.Body)
	}
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}

func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return ErrNetwork
}

func resultLabel(kind error) string {
	if errors.Is(kind, ErrTimeout) {
		return "timeout"
	}
	return "network"
}

func truncate(body []byte) string {
	if len(body) > maxLoggedBody {
		return string(body[:maxLoggedBody]) + "..."
	}
	return string(body)
}
