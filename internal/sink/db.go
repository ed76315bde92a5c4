package sink

import (
	"context"
	"sync"

	"github.com/banshee-data/posecapture/internal/db"
	"github.com/banshee-data/posecapture/internal/fusion"
)

// DBSink mirrors records into the SQLite session store under one session ID.
// It does not own the database; Close only stops further appends.
type DBSink struct {
	ctx       context.Context
	store     *db.DB
	sessionID string

	mu     sync.Mutex
	closed bool
}

// NewDBSink returns a sink writing to sessionID in store.
func NewDBSink(ctx context.Context, store *db.DB, sessionID string) *DBSink {
	return &DBSink{ctx: context.WithoutCancel(ctx), store: store, sessionID: sessionID}
}

// Append inserts one frame's records in a transaction.
func (s *DBSink) Append(records []fusion.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.store.InsertRecords(s.ctx, s.sessionID, records)
}

// Close stops further appends.
func (s *DBSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// SessionID returns the session the sink writes to.
func (s *DBSink) SessionID() string { return s.sessionID }
