package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/docbench/docbench/internal/workload"
)

// Client is a transport that models using the target database's native
// client library for proper session semantics: it reuses one
// *http.Client configured for the target's preferred compression (zstd
// by default) and, because a native client hides its own wire framing,
// estimates bytesOut/bytesIn from marshaled JSON size rather than
// measuring the actual wire bytes exactly.
type Client struct {
	cfg    RawConfig
	client *http.Client
}

// NewClient builds a Client transport with the same pooling and HTTP/2
// tuning as Raw, but defaulting compression to zstd when unset, matching
// a native client's usual preference.
func NewClient(cfg RawConfig) (*Client, error) {
	if cfg.Compression == "" {
		cfg.Compression = CompressionZstd
	}
	tr := &http.Transport{
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
		MaxIdleConns:          0,
		MaxIdleConnsPerHost:   0,
		IdleConnTimeout:       time.Minute,
		ExpectContinueTimeout: 0,
	}
	h2, err := http2.ConfigureTransports(tr)
	if err != nil {
		return nil, fmt.Errorf("transport: configure http2: %w", err)
	}
	h2.MaxReadFrameSize = http2StreamWindow
	client := &http.Client{
		Transport: tr,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &Client{cfg: cfg, client: client}, nil
}

func (c *Client) url(path string) string { return c.cfg.BaseURL + path }

func (c *Client) send(ctx context.Context, method, path string, payload []byte) (Result, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), bytes.NewReader(payload))
	if err != nil {
		return Result{}, nil, fmt.Errorf("transport: build request: %w", err)
	}
	if len(payload) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept-Encoding", string(c.cfg.Compression))

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Cancelled: true, BytesOut: int64(len(payload))}, nil, nil
		}
		return Result{Success: false, BytesOut: int64(len(payload)), ErrorDetail: shortError(err)}, nil, nil
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return Result{Success: false, ErrorDetail: shortError(err)}, nil, nil
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	res := Result{
		Success: success,
		// Estimated rather than exact: a real native client applies its
		// own framing/compression the caller never observes directly.
		BytesOut: int64(len(payload)),
		BytesIn:  int64(buf.Len()),
	}
	if !success {
		res.ErrorDetail = fmt.Sprintf("http %d", resp.StatusCode)
	}
	return res, buf.Bytes(), nil
}

func (c *Client) Execute(ctx context.Context, op workload.Operation) (Result, error) {
	switch op.Kind {
	case workload.KindReadByID:
		res, _, err := c.send(ctx, http.MethodGet, fmt.Sprintf("%s?id=%d", c.cfg.Endpoints.Document, op.ID), nil)
		return res, err
	case workload.KindInsert, workload.KindUpdate:
		res, _, err := c.send(ctx, http.MethodPut, fmt.Sprintf("%s?id=%d", c.cfg.Endpoints.Document, op.ID), op.Payload)
		return res, err
	case workload.KindBulkInsert:
		body, err := json.Marshal(op.Documents)
		if err != nil {
			return Result{}, fmt.Errorf("transport: marshal bulk batch: %w", err)
		}
		res, _, err := c.send(ctx, http.MethodPost, c.cfg.Endpoints.BulkDocs, body)
		return res, err
	case workload.KindQuery:
		body, err := json.Marshal(map[string]any{"query": op.QueryText, "params": op.QueryParams})
		if err != nil {
			return Result{}, fmt.Errorf("transport: marshal query: %w", err)
		}
		res, _, err := c.send(ctx, http.MethodPost, c.cfg.Endpoints.Queries, body)
		return res, err
	case workload.KindVectorSearch:
		body, err := json.Marshal(map[string]any{
			"field": op.VectorField, "vector": op.Vector, "k": op.VectorK,
			"threshold": op.VectorThreshold, "mode": op.VectorMode,
		})
		if err != nil {
			return Result{}, fmt.Errorf("transport: marshal vector search: %w", err)
		}
		res, _, err := c.send(ctx, http.MethodPost, c.cfg.Endpoints.Queries, body)
		return res, err
	default:
		return Result{}, fmt.Errorf("transport: unsupported operation kind %q", op.Kind)
	}
}

func (c *Client) Calibrate(ctx context.Context, path string) (CalibrationSample, error) {
	start := time.Now()
	res, _, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return CalibrationSample{}, err
	}
	total := time.Since(start)
	return CalibrationSample{
		TTFBMicros:  total.Microseconds(), // a native client does not expose TTFB separately
		TotalMicros: total.Microseconds(),
		Success:     res.Success,
		ErrorDetail: res.ErrorDetail,
	}, nil
}

func (c *Client) PutDocument(ctx context.Context, id int64, payload []byte) error {
	res, _, err := c.send(ctx, http.MethodPut, fmt.Sprintf("%s?id=%d", c.cfg.Endpoints.Document, id), payload)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("transport: preload id=%d: %s", id, res.ErrorDetail)
	}
	return nil
}

func (c *Client) GetServerCounters(ctx context.Context) (ServerCounters, error) {
	_, body, err := c.send(ctx, http.MethodGet, c.cfg.Endpoints.BuildVer, nil)
	if err != nil {
		return ServerCounters{}, err
	}
	var v struct {
		Version string `json:"Version"`
	}
	if len(body) > 0 {
		_ = json.Unmarshal(body, &v)
	}
	return ServerCounters{BuildVersion: v.Version}, nil
}

func (c *Client) Validate(ctx context.Context) error {
	res, _, err := c.send(ctx, http.MethodGet, c.cfg.Endpoints.BuildVer, nil)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("transport: validate: %s", res.ErrorDetail)
	}
	return nil
}

func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
