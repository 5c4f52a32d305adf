package ws

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"chatup/internal/metrics"
)

// ReplacePolicy decides what Register does when the user already has a
// registered handle.
type ReplacePolicy string

const (
	// ReplaceOverwrite installs the new handle and leaves the old one open.
	// The caller gets the old handle back; nothing else closes it.
	ReplaceOverwrite ReplacePolicy = "overwrite"
	// ReplaceCloseOld installs the new handle and closes the old one.
	ReplaceCloseOld ReplacePolicy = "close-old"
	// ReplaceReject keeps the existing handle and refuses the new one.
	ReplaceReject ReplacePolicy = "reject"
)

// ErrAlreadyConnected is returned by Register under ReplaceReject.
var ErrAlreadyConnected = errors.New("user already has a live connection")

// ParseReplacePolicy maps a config value to a policy; empty means overwrite.
func ParseReplacePolicy(s string) (ReplacePolicy, error) {
	switch p := ReplacePolicy(s); p {
	case ReplaceOverwrite, ReplaceCloseOld, ReplaceReject:
		return p, nil
	case "":
		return ReplaceOverwrite, nil
	}
	return "", fmt.Errorf("unknown replace policy %q", s)
}

// Observer is notified after every effective registry mutation, while the
// registry lock is held. Implementations must not block or call back into
// the registry.
type Observer interface {
	RegistryChanged(online []string, handles []Handle)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(online []string, handles []Handle)

func (f ObserverFunc) RegistryChanged(online []string, handles []Handle) { f(online, handles) }

// Registry maps user ids to their single live connection handle.
type Registry struct {
	mu        sync.Mutex
	handles   map[string]Handle
	policy    ReplacePolicy
	observers []Observer
	log       zerolog.Logger
}

// NewRegistry returns an empty registry applying policy on re-registration.
func NewRegistry(policy ReplacePolicy, logger zerolog.Logger) *Registry {
	if policy == "" {
		policy = ReplaceOverwrite
	}
	return &Registry{
		handles: make(map[string]Handle),
		policy:  policy,
		log:     logger.With().Str("component", "registry").Logger(),
	}
}

// Observe adds o to the observers notified on every change.
func (r *Registry) Observe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Policy returns the replace policy the registry was built with.
func (r *Registry) Policy() ReplacePolicy {
	return r.policy
}

// Register installs h for userID according to the replace policy and returns
// the handle it displaced, if any. Re-registering the current handle is a
// no-op.
func (r *Registry) Register(userID string, h Handle) (Handle, error) {
	if userID == "" {
		return nil, errors.New("register: empty user id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, exists := r.handles[userID]
	if exists && prev == h {
		return nil, nil
	}
	if exists {
		metrics.ReplacedConnections.WithLabelValues(string(r.policy)).Inc()
		switch r.policy {
		case ReplaceReject:
			return nil, ErrAlreadyConnected
		case ReplaceCloseOld:
			if err := prev.Close(); err != nil {
				r.log.Debug().Err(err).Str("user_id", userID).Msg("close replaced handle")
			}
		default:
			r.log.Warn().
				Str("user_id", userID).
				Str("stale_conn", prev.ID()).
				Str("new_conn", h.ID()).
				Msg("registry entry overwritten; previous connection left open")
		}
	}

	r.handles[userID] = h
	r.notifyLocked()
	return prev, nil
}

// Unregister removes whatever handle userID has. Absent users are ignored.
func (r *Registry) Unregister(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handles[userID]; !ok {
		return false
	}
	delete(r.handles, userID)
	r.notifyLocked()
	return true
}

// Release removes userID only if h is still its registered handle, so a
// replaced connection closing late cannot evict its successor.
func (r *Registry) Release(userID string, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.handles[userID]; !ok || cur != h {
		return false
	}
	delete(r.handles, userID)
	r.notifyLocked()
	return true
}

// Disconnect closes the handle registered for userID. The connection's own
// lifecycle releases the entry once it shuts down.
func (r *Registry) Disconnect(userID string) bool {
	h, ok := r.Lookup(userID)
	if !ok {
		return false
	}
	if err := h.Close(); err != nil {
		r.log.Debug().Err(err).Str("user_id", userID).Msg("close handle")
	}
	return true
}

// Lookup returns the handle registered for userID.
func (r *Registry) Lookup(userID string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[userID]
	return h, ok
}

// Snapshot returns the registered user ids in ascending order.
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idsLocked()
}

// Len returns the number of registered users.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

func (r *Registry) idsLocked() []string {
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) notifyLocked() {
	metrics.OnlineUsers.Set(float64(len(r.handles)))
	if len(r.observers) == 0 {
		return
	}
	online := r.idsLocked()
	handles := make([]Handle, 0, len(online))
	for _, id := range online {
		handles = append(handles, r.handles[id])
	}
	for _, o := range r.observers {
		o.RegistryChanged(online, handles)
	}
}
