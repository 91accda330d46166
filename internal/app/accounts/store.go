package accounts

// Store persists account records. Implementations need not be safe for
// concurrent Append calls with the same username; Registry serializes those.
type Store interface {
	// Close releases underlying resources.
	Close() error

	// Append durably persists r. It must not return before the record would
	// survive a crash.
	Append(r UserRecord) error

	// Load streams all records in the order they were appended.
	Load(fn func(r UserRecord) error) error
}
