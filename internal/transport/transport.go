// Package transport executes synthetic workload operations against the
// target server over HTTP, behind a common contract shared by a
// hand-rolled "raw" transport and a native-client-style transport.
package transport

import (
	"context"

	"github.com/docbench/docbench/internal/workload"
)

// Compression selects the wire compression applied to request and
// response bodies.
type Compression string

const (
	CompressionIdentity Compression = "identity"
	CompressionGzip     Compression = "gzip"
	CompressionZstd     Compression = "zstd"
	CompressionBrotli   Compression = "br"
	CompressionDeflate  Compression = "deflate"
)

// ProtocolVersion is the negotiated or requested HTTP wire version.
type ProtocolVersion string

const (
	ProtocolAuto ProtocolVersion = "auto"
	Protocol11   ProtocolVersion = "1.1"
	Protocol2    ProtocolVersion = "2"
	Protocol3    ProtocolVersion = "3"
)

// Result is the outcome of executing one operation: success/failure plus
// the actual serialized byte counts moved over the wire.
type Result struct {
	Success    bool
	BytesOut   int64
	BytesIn    int64
	Cancelled  bool
	ErrorDetail string
}

// CalibrationSample is one lightweight round-trip measurement used by the
// baseline calibrator.
type CalibrationSample struct {
	TTFBMicros   int64
	TotalMicros  int64
	Success      bool
	ErrorDetail  string
}

// ServerCounters is whatever REST-exposed server-side counters a
// transport can read incidentally (build version, license status, etc.),
// kept distinct from the SNMP/REST telemetry adapters which poll on a
// timer rather than per-operation.
type ServerCounters struct {
	BuildVersion string
	Extra        map[string]string
}

// Transport executes workload operations against one target and reports
// byte-accurate (or, for the client transport, estimated) counters. A
// Transport must be safe for concurrent use by many workers.
type Transport interface {
	// Execute runs op against the target, honoring cancel for step-end
	// cooperative cancellation. A cancellation must set Result.Cancelled
	// rather than Result.Success=false — cancelled requests are not
	// counted as operation errors.
	Execute(ctx context.Context, op workload.Operation) (Result, error)

	// Calibrate issues one lightweight request against path, used by the
	// baseline calibrator.
	Calibrate(ctx context.Context, path string) (CalibrationSample, error)

	// PutDocument preloads one document at id, bypassing the workload
	// generator, used during keyspace preload.
	PutDocument(ctx context.Context, id int64, payload []byte) error

	// GetServerCounters reads incidental REST-exposed server counters.
	GetServerCounters(ctx context.Context) (ServerCounters, error)

	// Validate confirms the transport can reach the target at all
	// (distinct from protocol negotiation, which picks a version).
	Validate(ctx context.Context) error

	// Close releases pooled connections.
	Close() error
}

// Endpoints names the REST paths the transport addresses, supplied as
// configuration rather than hard-coded into each request site.
type Endpoints struct {
	Document    string
	BulkDocs    string
	Queries     string
	BuildVer    string
	AdminMem    string
	AdminCPU    string
	AdminIO     string
	License     string
}

// EndpointsFor builds a RavenDB-shaped REST surface for the named
// logical database, matching the SNMP community default used elsewhere
// in the project.
func EndpointsFor(database string) Endpoints {
	prefix := "/databases/" + database
	return Endpoints{
		Document: prefix + "/docs",
		BulkDocs: prefix + "/bulk_docs",
		Queries:  prefix + "/queries",
		BuildVer: "/build/version",
		AdminMem: "/admin/debug/memory/stats",
		AdminCPU: "/admin/debug/proc/cpu",
		AdminIO:  "/admin/debug/io-metrics",
		License:  "/license/status",
	}
}

// DefaultEndpoints is EndpointsFor with the default database name.
func DefaultEndpoints() Endpoints {
	return EndpointsFor("docbench")
}
