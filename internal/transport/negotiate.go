package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

// NegotiationTimeout bounds each probe request; negotiation never
// inherits the step deadline.
const NegotiationTimeout = 5 * time.Second

// Prober is the minimal surface the negotiator needs: a single GET
// against a trivial endpoint, reporting which protocol actually served
// the response.
type Prober interface {
	ProbeOnce(ctx context.Context, version ProtocolVersion) (ok bool, effectiveProto string, err error)
}

// HTTPProber probes a target URL directly with net/http, switching
// transports per requested version.
type HTTPProber struct {
	URL string
}

func (p HTTPProber) ProbeOnce(ctx context.Context, version ProtocolVersion) (bool, string, error) {
	client, err := clientForProbe(version)
	if err != nil {
		return false, "", err
	}
	ctx, cancel := context.WithTimeout(ctx, NegotiationTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return false, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, "", nil // a failed probe is not a fatal error, just a miss
	}
	defer resp.Body.Close()
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	return ok, resp.Proto, nil
}

func clientForProbe(version ProtocolVersion) (*http.Client, error) {
	switch version {
	case Protocol2, Protocol3:
		// HTTP/3 probing reuses the HTTP/2 client: without a QUIC-capable
		// round tripper in the dependency set, the effective-protocol
		// mismatch falls through auto mode's candidate list to the next
		// version rather than falsely reporting HTTP/3 support.
		tr := &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
		if _, err := http2.ConfigureTransports(tr); err != nil {
			return nil, fmt.Errorf("transport: configure http2 for probe: %w", err)
		}
		return &http.Client{Transport: tr}, nil
	default:
		tr := &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			TLSNextProto:    map[string]func(string, *tls.Conn) http.RoundTripper{},
		}
		return &http.Client{Transport: tr}, nil
	}
}

// protoMatches reports whether the response's effective protocol line
// (e.g. "HTTP/2.0") actually is the version we asked for. An empty
// effective protocol (a prober that cannot report one) is treated as a
// match so the 2xx check alone decides.
func protoMatches(version ProtocolVersion, effective string) bool {
	if effective == "" {
		return true
	}
	switch version {
	case Protocol3:
		return strings.HasPrefix(effective, "HTTP/3")
	case Protocol2:
		return strings.HasPrefix(effective, "HTTP/2")
	default:
		return strings.HasPrefix(effective, "HTTP/1.1")
	}
}

// Negotiate picks a wire protocol version: explicit
// requests probe once and are fatal-on-failure only under strict mode;
// auto mode probes 3→2→1.1 and returns the first that answers 2xx over
// the probed version itself (a 2xx served over a different effective
// protocol is a mismatch, not a success), falling back to 1.1 if
// nothing else answered.
func Negotiate(ctx context.Context, prober Prober, requested ProtocolVersion, strict bool) (ProtocolVersion, error) {
	if requested != ProtocolAuto {
		ok, effective, err := prober.ProbeOnce(ctx, requested)
		if err != nil {
			if strict {
				return "", fmt.Errorf("transport: negotiate %s: %w", requested, err)
			}
			return Protocol11, nil
		}
		if !ok || !protoMatches(requested, effective) {
			if strict {
				if ok {
					return "", fmt.Errorf("transport: negotiate %s: target answered over %s", requested, effective)
				}
				return "", fmt.Errorf("transport: negotiate %s: target did not respond 2xx", requested)
			}
			return Protocol11, nil
		}
		return requested, nil
	}

	for _, candidate := range []ProtocolVersion{Protocol3, Protocol2, Protocol11} {
		ok, effective, err := prober.ProbeOnce(ctx, candidate)
		if err == nil && ok && protoMatches(candidate, effective) {
			return candidate, nil
		}
	}
	return Protocol11, nil
}
