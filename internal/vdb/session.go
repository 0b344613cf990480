package vdb

import (
	"errors"
	"fmt"
	"sync"
)

// Factory owns the process-wide native state of a Driver. It initializes the
// driver before the first Session is opened and tears it down after the last
// one is closed. A process should hold a single Factory per Driver.
type Factory struct {
	mu     sync.Mutex // guards open and the driver lifecycle
	serial sync.Mutex // serializes database work across sessions
	driver Driver
	open   int
}

// NewFactory creates a Factory for the given driver.
func NewFactory(driver Driver) *Factory {
	return &Factory{driver: driver}
}

// OpenCount returns the number of sessions currently open.
func (f *Factory) OpenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// Open opens the database at path. On failure no Session is returned and the
// error wraps ErrDatabaseOpen.
func (f *Factory) Open(path string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.open == 0 {
		if err := f.driver.Init(); err != nil {
			return nil, fmt.Errorf("%w: native init: %v", ErrDatabaseOpen, err)
		}
	}

	db, err := f.driver.Open(path)
	if err == nil && db == nil {
		err = errors.New("driver returned no handle")
	}
	if err != nil {
		if f.open == 0 {
			// Nobody else holds the native state; do not leak it.
			_ = f.driver.End()
		}
		if errors.Is(err, ErrDatabaseOpen) {
			return nil, err
		}
		return nil, fmt.Errorf("%w %s: %v", ErrDatabaseOpen, path, err)
	}

	f.open++
	return &Session{factory: f, db: db, path: path}, nil
}

// release is called by Session.Close with the database already closed.
func (f *Factory) release() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.open--
	if f.open == 0 {
		if err := f.driver.End(); err != nil {
			return fmt.Errorf("failed to tear down native state: %w", err)
		}
	}
	return nil
}

// Session is one open coverage database. A Session has a single owner and is
// not safe for concurrent use; database work from all sessions of a Factory
// is serialized through Use.
type Session struct {
	factory *Factory
	db      Database
	path    string
	closed  bool
}

// Path returns the path the session was opened with.
func (s *Session) Path() string {
	return s.path
}

// Use runs fn with the open database while holding the factory's serial lock.
func (s *Session) Use(fn func(db Database) error) error {
	if s.closed {
		return ErrSessionClosed
	}
	s.factory.serial.Lock()
	defer s.factory.serial.Unlock()
	return fn(s.db)
}

// Close releases the database and, if it was the last open session, the
// process-wide native state. Closing twice returns ErrSessionClosed.
func (s *Session) Close() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true

	s.factory.serial.Lock()
	closeErr := s.db.Close()
	s.factory.serial.Unlock()

	if err := s.factory.release(); err != nil {
		return err
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close coverage database %s: %w", s.path, closeErr)
	}
	return nil
}
