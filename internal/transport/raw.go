package transport

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/net/http2"

	"github.com/docbench/docbench/internal/workload"
)

// http2StreamWindow is the 16 MiB value applied as the HTTP/2 client's
// MaxReadFrameSize; the per-stream flow-control window itself is not set.
const http2StreamWindow = 16 * 1024 * 1024

// RawConfig configures the hand-rolled transport.
type RawConfig struct {
	BaseURL     string
	Endpoints   Endpoints
	Protocol    ProtocolVersion
	Compression Compression
	// RequestTimeout is not read by Raw or Client: their http.Client has
	// no timeout, and negotiation uses NegotiationTimeout instead.
	RequestTimeout time.Duration
}

// Raw is a hand-rolled HTTP transport to the database's REST surface,
// covering identity/gzip/brotli/deflate/zstd compression with exact
// byte accounting from the serialized request and response bodies.
type Raw struct {
	cfg    RawConfig
	client *http.Client
}

// NewRaw builds a Raw transport with unlimited connection pooling, no
// automatic redirects, no 100-continue, and an HTTP/2 max read frame size
// of 16 MiB with multiple connections allowed.
func NewRaw(cfg RawConfig) (*Raw, error) {
	tr := &http.Transport{
		TLSClientConfig:        &tls.Config{InsecureSkipVerify: true},
		MaxIdleConns:           0, // unlimited
		MaxIdleConnsPerHost:    0, // unlimited, so the pool never becomes the client-side bottleneck
		MaxConnsPerHost:        0,
		IdleConnTimeout:        time.Minute,
		ExpectContinueTimeout:  0, // disable 100-continue
		DisableCompression:     true, // the transport itself manages compression framing
	}

	switch cfg.Protocol {
	case Protocol2, ProtocolAuto, Protocol3:
		h2, err := http2.ConfigureTransports(tr)
		if err != nil {
			return nil, fmt.Errorf("transport: configure http2: %w", err)
		}
		// golang.org/x/net/http2's client Transport has no direct
		// per-stream flow-control window knob (that's a server-side
		// concept); MaxReadFrameSize is the closest client lever.
		h2.MaxReadFrameSize = http2StreamWindow
		h2.AllowHTTP = false
		h2.StrictMaxConcurrentStreams = false
	default:
		tr.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}

	client := &http.Client{
		Transport: tr,
		Timeout:   0, // callers drive cancellation via ctx; the step deadline suffices
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Raw{cfg: cfg, client: client}, nil
}

func (r *Raw) url(path string) string {
	return r.cfg.BaseURL + path
}

func (r *Raw) encodeBody(body []byte) ([]byte, string, error) {
	switch r.cfg.Compression {
	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "gzip", nil
	case CompressionDeflate:
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, "", err
		}
		if _, err := w.Write(body); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "deflate", nil
	case CompressionBrotli:
		var buf bytes.Buffer
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "br", nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, "", err
		}
		defer enc.Close()
		return enc.EncodeAll(body, nil), "zstd", nil
	default:
		return body, "", nil
	}
}

func (r *Raw) decodeBody(encoding string, body io.Reader) ([]byte, error) {
	switch encoding {
	case "gzip":
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case "deflate":
		zr := flate.NewReader(body)
		defer zr.Close()
		return io.ReadAll(zr)
	case "br":
		return io.ReadAll(brotli.NewReader(body))
	case "zstd":
		dec, err := zstd.NewReader(body)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return io.ReadAll(dec)
	default:
		return io.ReadAll(body)
	}
}

func (r *Raw) do(ctx context.Context, method, path string, payload []byte) (Result, []byte, error) {
	wire, encoding, err := r.encodeBody(payload)
	if err != nil {
		return Result{}, nil, fmt.Errorf("transport: encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.url(path), bytes.NewReader(wire))
	if err != nil {
		return Result{}, nil, fmt.Errorf("transport: build request: %w", err)
	}
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
		req.Header.Set("Accept-Encoding", encoding)
	}
	if len(payload) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Cancelled: true, BytesOut: int64(len(wire))}, nil, nil
		}
		return Result{Success: false, BytesOut: int64(len(wire)), ErrorDetail: shortError(err)}, nil, nil
	}
	defer resp.Body.Close()

	respBody, err := r.decodeBody(resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return Result{Success: false, BytesOut: int64(len(wire)), ErrorDetail: shortError(err)}, nil, nil
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	res := Result{
		Success:  success,
		BytesOut: int64(len(wire)),
		BytesIn:  int64(len(respBody)),
	}
	if !success {
		res.ErrorDetail = fmt.Sprintf("http %d", resp.StatusCode)
	}
	return res, respBody, nil
}

// Execute runs op against the target's REST surface.
func (r *Raw) Execute(ctx context.Context, op workload.Operation) (Result, error) {
	switch op.Kind {
	case workload.KindReadByID:
		res, _, err := r.do(ctx, http.MethodGet, fmt.Sprintf("%s?id=%d", r.cfg.Endpoints.Document, op.ID), nil)
		return res, err
	case workload.KindInsert, workload.KindUpdate:
		res, _, err := r.do(ctx, http.MethodPut, fmt.Sprintf("%s?id=%d", r.cfg.Endpoints.Document, op.ID), op.Payload)
		return res, err
	case workload.KindBulkInsert:
		body, err := json.Marshal(op.Documents)
		if err != nil {
			return Result{}, fmt.Errorf("transport: marshal bulk batch: %w", err)
		}
		res, _, err := r.do(ctx, http.MethodPost, r.cfg.Endpoints.BulkDocs, body)
		return res, err
	case workload.KindQuery:
		body, err := json.Marshal(map[string]any{"query": op.QueryText, "params": op.QueryParams})
		if err != nil {
			return Result{}, fmt.Errorf("transport: marshal query: %w", err)
		}
		res, _, err := r.do(ctx, http.MethodPost, r.cfg.Endpoints.Queries, body)
		return res, err
	case workload.KindVectorSearch:
		body, err := json.Marshal(map[string]any{
			"field":     op.VectorField,
			"vector":    op.Vector,
			"k":         op.VectorK,
			"threshold": op.VectorThreshold,
			"mode":      op.VectorMode,
		})
		if err != nil {
			return Result{}, fmt.Errorf("transport: marshal vector search: %w", err)
		}
		res, _, err := r.do(ctx, http.MethodPost, r.cfg.Endpoints.Queries, body)
		return res, err
	default:
		return Result{}, fmt.Errorf("transport: unsupported operation kind %q", op.Kind)
	}
}

// Calibrate issues a single lightweight GET and times TTFB versus total.
func (r *Raw) Calibrate(ctx context.Context, path string) (CalibrationSample, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url(path), nil)
	if err != nil {
		return CalibrationSample{}, fmt.Errorf("transport: build calibration request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return CalibrationSample{Success: false, ErrorDetail: shortError(err)}, nil
	}
	defer resp.Body.Close()
	ttfb := time.Since(start)
	_, _ = io.Copy(io.Discard, resp.Body)
	total := time.Since(start)
	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	sample := CalibrationSample{
		TTFBMicros:  ttfb.Microseconds(),
		TotalMicros: total.Microseconds(),
		Success:     success,
	}
	if !success {
		sample.ErrorDetail = fmt.Sprintf("http %d", resp.StatusCode)
	}
	return sample, nil
}

// PutDocument preloads a single document, bypassing the workload
// generator.
func (r *Raw) PutDocument(ctx context.Context, id int64, payload []byte) error {
	res, _, err := r.do(ctx, http.MethodPut, fmt.Sprintf("%s?id=%d", r.cfg.Endpoints.Document, id), payload)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("transport: preload id=%d: %s", id, res.ErrorDetail)
	}
	return nil
}

// GetServerCounters reads the build-version endpoint; extensions can
// layer in admin endpoints as needed.
func (r *Raw) GetServerCounters(ctx context.Context) (ServerCounters, error) {
	_, body, err := r.do(ctx, http.MethodGet, r.cfg.Endpoints.BuildVer, nil)
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

// Validate confirms the target is reachable at all.
func (r *Raw) Validate(ctx context.Context) error {
	res, _, err := r.do(ctx, http.MethodGet, r.cfg.Endpoints.BuildVer, nil)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("transport: validate: %s", res.ErrorDetail)
	}
	return nil
}

// Close releases pooled connections.
func (r *Raw) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

func shortError(err error) string {
	s := err.Error()
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
