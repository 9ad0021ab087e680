package station

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/okian/heatscore/internal/adapters/mq/queue"
)

// sessionKey is the panel session document's key in the station bucket.
const sessionKey = "panel_session"

// Session is the panel session a judge opened on this station.
type Session struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	RoundHeatID int64     `json:"round_heat_id"`
	PersonnelID int64     `json:"personnel_id"`
}

// Valid reports whether the session can still be used at now.
func (s Session) Valid(now time.Time) bool {
	return s.Token != "" && now.Before(s.ExpiresAt)
}

// SessionStore keeps the panel session next to the queue so that a
// restarted station does not ask for the passcode again.
type SessionStore struct {
	db *bbolt.DB
}

// NewSessionStore stores sessions in db, opened with queue.OpenBolt.
func NewSessionStore(db *bbolt.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Load returns the stored session, if any.
func (s *SessionStore) Load(_ context.Context) (Session, bool, error) {
	var (
		sess  Session
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(queue.Bucket))
		if b == nil {
			return nil
		}
		data := b.Get([]byte(sessionKey))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &sess)
	})
	if err != nil {
		return Session{}, false, fmt.Errorf("load %s: %w", sessionKey, err)
	}
	return sess, found, nil
}

// Save replaces the stored session.
func (s *SessionStore) Save(_ context.Context, sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(queue.Bucket))
		if b == nil {
			return fmt.Errorf("bucket %s does not exist", queue.Bucket)
		}
		return b.Put([]byte(sessionKey), data)
	})
}

// Clear removes the stored session.
func (s *SessionStore) Clear(_ context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(queue.Bucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(sessionKey))
	})
}
