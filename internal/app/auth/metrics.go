package auth

// Request results reported to Metrics.
const (
	ResultOK  = "ok"
	ResultErr = "err"
)

// commandMalformed labels requests that did not parse.
const commandMalformed = "MALFORMED"

// Metrics is a tiny metrics interface. Implementations must be thread-safe.
type Metrics interface {
	IncRequest(command, result string)
}

type NoopMetrics struct{}

func (NoopMetrics) IncRequest(string, string) {}
