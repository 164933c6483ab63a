// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package session persists the platform login cookies between runs.
package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

// AuthCookie is the cookie whose presence marks a logged-in session.
const AuthCookie = "SESSDATA"

// Cookie is the persisted form of one cookie.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HTTPOnly bool      `json:"http_only,omitempty"`
}

// Expired reports whether the cookie had an expiry that is before now.
func (c Cookie) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && c.Expires.Before(now)
}

// State is the credential state loaded once at startup.
type State struct {
	Cookies []Cookie  `json:"cookies"`
	SavedAt time.Time `json:"saved_at,omitempty"`
}

// IsAuthenticated reports whether st carries a live auth cookie.
func IsAuthenticated(st State) bool {
	now := time.Now()
	for _, c := range st.Cookies {
		if c.Name == AuthCookie && c.Value != "" && !c.Expired(now) {
			return true
		}
	}
	return false
}

// Store reads and writes State at a fixed path. Files ending in ".txt" are
// read as Netscape cookie files; everything else is JSON.
type Store struct {
	path   string
	lock   *flock.Flock
	logger zerolog.Logger
}

// NewStore returns a store for path.
func NewStore(path string, logger zerolog.Logger) *Store {
	return &Store{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger,
	}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load returns the persisted state, or an empty state if none exists.
func (s *Store) Load() (State, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return State{}, fmt.Errorf("create session dir: %w", err)
	}
	if err := s.lock.RLock(); err != nil {
		return State{}, fmt.Errorf("lock session file: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	// #nosec G304 -- path comes from operator configuration
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug().Str("path", s.path).Msg("no saved session")
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("read session file: %w", err)
	}

	var st State
	if strings.EqualFold(filepath.Ext(s.path), ".txt") {
		st.Cookies, err = ParseNetscape(bytes.NewReader(data))
		if err != nil {
			return State{}, fmt.Errorf("parse cookies.txt: %w", err)
		}
	} else if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &st); err != nil {
			return State{}, fmt.Errorf("parse session file: %w", err)
		}
	}

	s.logger.Debug().
		Str("path", s.path).
		Int("cookies", len(st.Cookies)).
		Bool("authenticated", IsAuthenticated(st)).
		Msg("session loaded")
	return st, nil
}

// Save atomically replaces the persisted state. Netscape files are never
// written; the JSON state goes next to them instead.
func (s *Store) Save(st State) error {
	target := s.path
	if strings.EqualFold(filepath.Ext(target), ".txt") {
		target = strings.TrimSuffix(target, filepath.Ext(target)) + ".json"
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	st.SavedAt = time.Now().UTC()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock session file: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	if err := renameio.WriteFile(target, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	s.logger.Info().Str("path", target).Int("cookies", len(st.Cookies)).Msg("session saved")
	return nil
}
