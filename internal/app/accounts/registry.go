package accounts

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"p2p-directory/internal/app/names"
	"p2p-directory/internal/telemetry"
)

// Registry is the in-memory index of accounts backed by a durable Store.
// Lookups never wait on disk: the flush in Register happens outside the
// index lock while the username is held in a pending set.
type Registry struct {
	store   Store
	hasher  Hasher
	v       *validator.Validate
	logger  telemetry.Logger
	metrics Metrics

	mu      sync.RWMutex
	users   map[string]UserRecord // keyed by names.Key
	pending map[string]struct{}
}

type Option func(*Registry)

func WithHasher(h Hasher) Option           { return func(r *Registry) { r.hasher = h } }
func WithLogger(l telemetry.Logger) Option { return func(r *Registry) { r.logger = l } }
func WithMetrics(m Metrics) Option         { return func(r *Registry) { r.metrics = m } }

// Open rebuilds the index from store. Any unreadable, invalid or duplicate
// record fails with ErrCorruptStore; callers should treat that as fatal.
func Open(store Store, opts ...Option) (*Registry, error) {
	r := &Registry{
		store:   store,
		hasher:  Blake2b{},
		v:       newValidator(),
		logger:  telemetry.Discard,
		metrics: NoopMetrics{},
		users:   make(map[string]UserRecord),
		pending: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(r)
	}

	err := store.Load(func(rec UserRecord) error {
		if err := r.validate(registration{Username: rec.Username, Password: "-", Date: rec.RegisteredOn}); err != nil {
			return fmt.Errorf("%w: record %q: %v", ErrCorruptStore, rec.Username, err)
		}
		key := names.Key(rec.Username)
		if _, dup := r.users[key]; dup {
			return fmt.Errorf("%w: duplicate username %q", ErrCorruptStore, rec.Username)
		}
		r.users[key] = rec
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrCorruptStore) {
			err = fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		return nil, err
	}
	r.logger.Printf("[accounts] loaded %d account(s)", len(r.users))
	return r, nil
}

// Register atomically claims username and persists the new record before
// returning. Of any number of concurrent registrations of the same (folded)
// username exactly one succeeds; the rest get ErrUsernameTaken.
func (r *Registry) Register(username, password, date string) (UserRecord, error) {
	if err := r.validate(registration{Username: username, Password: password, Date: date}); err != nil {
		r.metrics.ObserveRegistration(ResultInvalid)
		return UserRecord{}, err
	}
	key := names.Key(username)

	r.mu.Lock()
	_, exists := r.users[key]
	_, inflight := r.pending[key]
	if exists || inflight {
		r.mu.Unlock()
		r.metrics.ObserveRegistration(ResultTaken)
		return UserRecord{}, ErrUsernameTaken
	}
	r.pending[key] = struct{}{}
	r.mu.Unlock()

	rec := UserRecord{
		Username:     username,
		PasswordHash: r.hasher.Hash(password),
		RegisteredOn: date,
	}
	err := r.store.Append(rec)

	r.mu.Lock()
	delete(r.pending, key)
	if err == nil {
		r.users[key] = rec
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Printf("[accounts] persist %q failed: %v", username, err)
		r.metrics.ObserveRegistration(ResultStorage)
		return UserRecord{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	r.metrics.ObserveRegistration(ResultOK)
	return rec, nil
}

// Verify checks password against the stored digest and returns the record,
// whose Username is the registered spelling.
func (r *Registry) Verify(username, password string) (UserRecord, error) {
	r.mu.RLock()
	rec, ok := r.users[names.Key(username)]
	r.mu.RUnlock()
	if !ok {
		return UserRecord{}, ErrNoSuchUser
	}
	if !rec.PasswordHash.Equal(r.hasher.Hash(password)) {
		return UserRecord{}, ErrBadPassword
	}
	return rec, nil
}

// Lookup returns the record registered under username, if any.
func (r *Registry) Lookup(username string) (UserRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.users[names.Key(username)]
	return rec, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// Close closes the underlying store.
func (r *Registry) Close() error { return r.store.Close() }
