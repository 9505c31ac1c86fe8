package keystore

import (
	"runtime"
	"sync"
)

// SecureBytes holds secret material in locked memory where the platform
// allows it, and zeroes it on Destroy.
type SecureBytes struct {
	data   []byte
	locked bool
	mu     sync.Mutex
}

// NewSecureBytes copies data into a new SecureBytes.
// The caller still owns data and should zero it.
func NewSecureBytes(data []byte) *SecureBytes {
	buf := make([]byte, len(data))
	copy(buf, data)

	sb := &SecureBytes{data: buf, locked: mlock(buf)}

	// Zero memory even if Destroy is never called.
	runtime.SetFinalizer(sb, func(s *SecureBytes) { s.Destroy() })
	return sb
}

// Bytes returns the secret, or nil after Destroy. The slice aliases the
// secure buffer; do not retain it past Destroy.
func (s *SecureBytes) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Len returns the secret length, or 0 after Destroy.
func (s *SecureBytes) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// IsLocked reports whether the buffer is mlocked.
func (s *SecureBytes) IsLocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Destroy zeroes and unlocks the buffer. Safe to call more than once.
func (s *SecureBytes) Destroy() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return
	}
	zero(s.data)
	if s.locked {
		munlock(s.data)
		s.locked = false
	}
	s.data = nil
	runtime.SetFinalizer(s, nil)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
