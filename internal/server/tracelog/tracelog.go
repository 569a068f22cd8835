// Package tracelog writes the append-only request log (§3/§6) and, when
// enabled, per-request redacted trace files. Rotation is handled by
// lumberjack, the same dependency the teacher uses for its own on-disk
// logs, repurposed here from general application logging to this
// request-scoped JSON-Lines sink. Header matching for redaction is done
// with gobwas/glob, generalized from the teacher's sole use of that
// library for OpModelGlob model-name matching in internal/smart_routing.
package tracelog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RequestEntry is one line of the request log, per §3/§6.
type RequestEntry struct {
	Timestamp      time.Time `json:"timestamp"`
	RequestID      string    `json:"request_id"`
	Model          string    `json:"model"`
	Streaming      bool      `json:"streaming"`
	Outcome        string    `json:"outcome"`
	HTTPStatus     int       `json:"http_status"`
	LatencyMS      float64   `json:"latency_ms"`
	TimeToFirstMS  float64   `json:"time_to_first_event_ms,omitempty"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	CacheHit       bool      `json:"cache_hit"`
	Error          string    `json:"error,omitempty"`
}

const redactedSentinel = "[REDACTED]"

// defaultSensitiveHeaders matches header names commonly carrying
// credentials, per §6: "credentials and authentication headers are
// replaced with a constant sentinel before write."
var defaultSensitiveHeaders = []string{"authorization", "x-api-key", "cookie", "set-cookie", "*-token", "*-secret", "*-key"}

// Sink writes request-log entries and, optionally, per-request trace
// files to traceDir. A nil Sink, or one constructed with empty paths,
// silently discards everything, matching §7's "log-sink errors never fail a
// request" policy by construction rather than by catching errors.
type Sink struct {
	mu       sync.Mutex
	log      *lumberjack.Logger
	traceDir string
	globs    []glob.Glob
}

// New builds a Sink. requestLogPath may be empty to disable request
// logging; traceDir may be empty to disable per-request trace files.
func New(requestLogPath, traceDir string) *Sink {
	s := &Sink{traceDir: traceDir}
	if requestLogPath != "" {
		s.log = &lumberjack.Logger{
			Filename:   requestLogPath,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
	}
	for _, pat := range defaultSensitiveHeaders {
		if g, err := glob.Compile(pat); err == nil {
			s.globs = append(s.globs, g)
		}
	}
	return s
}

// LogRequest appends one RequestEntry as a JSON line. Failure is swallowed
// intentionally: the request log is observability, never a request
// dependency.
func (s *Sink) LogRequest(entry RequestEntry) {
	if s == nil || s.log == nil {
		return
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Write(append(line, '\n'))
}

// sensitive reports whether headerName, lower-cased, matches one of the
// redaction globs.
func (s *Sink) sensitive(headerName string) bool {
	name := strings.ToLower(headerName)
	for _, g := range s.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// RedactHeaders returns a copy of headers with sensitive values replaced
// by redactedSentinel, for safe inclusion in a trace file.
func (s *Sink) RedactHeaders(headers map[string][]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if s.sensitive(k) {
			out[k] = redactedSentinel
			continue
		}
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// TraceEntry is the per-request trace file shape.
type TraceEntry struct {
	RequestID       string            `json:"request_id"`
	Timestamp       time.Time         `json:"timestamp"`
	RequestHeaders  map[string]string `json:"request_headers"`
	RequestBody     json.RawMessage   `json:"request_body"`
	ResponseBody    json.RawMessage   `json:"response_body,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// WriteTrace writes one trace file, named by requestID, into traceDir. A
// no-op if tracing is disabled.
func (s *Sink) WriteTrace(entry TraceEntry) {
	if s == nil || s.traceDir == "" {
		return
	}
	if entry.RequestID == "" {
		entry.RequestID = uuid.NewString()
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return
	}
	path := filepath.Join(s.traceDir, entry.RequestID+".json")
	_ = os.MkdirAll(s.traceDir, 0o755)
	_ = os.WriteFile(path, data, 0o644)
}
