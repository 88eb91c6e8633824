// Package supersede implements cancellation by supersession: every request in
// a session takes a sequence number, and only the result carrying the latest
// number may be committed. Older work is allowed to finish; its result is
// dropped.
package supersede

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrSuperseded = errors.New("result superseded by a newer request")

type Tracker interface {
	// Issue returns the next sequence number for session, starting at 1.
	Issue(ctx context.Context, session string) (uint64, error)
	// Latest returns the most recently issued number, or 0 if none.
	Latest(ctx context.Context, session string) (uint64, error)
}

// Token identifies one request. A token with an empty session is never
// superseded.
type Token struct {
	Session string `json:"session,omitempty"`
	Seq     uint64 `json:"seq,omitempty"`
}

// NewToken issues a fresh token for session.
func NewToken(ctx context.Context, t Tracker, session string) (Token, error) {
	session = strings.TrimSpace(session)
	if session == "" || t == nil {
		return Token{}, nil
	}
	seq, err := t.Issue(ctx, session)
	if err != nil {
		return Token{}, err
	}
	return Token{Session: session, Seq: seq}, nil
}

func IsCurrent(ctx context.Context, t Tracker, tok Token) (bool, error) {
	if tok.Session == "" || t == nil {
		return true, nil
	}
	latest, err := t.Latest(ctx, tok.Session)
	if err != nil {
		return false, err
	}
	return latest == tok.Seq, nil
}

// Commit runs fn only while tok is still the latest request of its session.
func Commit(ctx context.Context, t Tracker, tok Token, fn func() error) error {
	current, err := IsCurrent(ctx, t, tok)
	if err != nil {
		return err
	}
	if !current {
		return ErrSuperseded
	}
	return fn()
}

type MemoryTracker struct {
	mu   sync.Mutex
	seqs map[string]uint64
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{seqs: make(map[string]uint64)}
}

func (m *MemoryTracker) Issue(_ context.Context, session string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seqs[session]++
	return m.seqs[session], nil
}

func (m *MemoryTracker) Latest(_ context.Context, session string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seqs[session], nil
}
