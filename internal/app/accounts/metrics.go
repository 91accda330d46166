package accounts

// Registration outcomes reported to Metrics.
const (
	ResultOK      = "ok"
	ResultTaken   = "taken"
	ResultInvalid = "invalid"
	ResultStorage = "storage_error"
)

// Metrics is a tiny metrics interface for registrations.
type Metrics interface {
	ObserveRegistration(result string)
}

type NoopMetrics struct{}

func (NoopMetrics) ObserveRegistration(string) {}
