package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/SundayYogurt/clearance_service/internal/interfaces"
	"github.com/SundayYogurt/clearance_service/internal/workflow"
	"github.com/google/uuid"
)

const (
	sessionKeyPrefix   = "clearance:session:"
	referenceKeyPrefix = "clearance:payment:"
	lockKeyPrefix      = "clearance:lock:"

	// a binding outlives its session so late webhooks can still be matched
	referenceTTL = 30 * 24 * time.Hour

	lockTTL  = 30 * time.Second
	lockWait = 10 * time.Second
	lockPoll = 20 * time.Millisecond
)

var (
	ErrSessionNotFound   = errors.New("clearance session not found or expired")
	ErrReferenceNotFound = errors.New("payment reference not found")
	ErrSessionBusy       = errors.New("clearance session is busy, try again")
	ErrSessionChanged    = errors.New("clearance session changed, reload and try again")

	errLockHeld = errors.New("lock held")
)

// SessionStore keeps each applicant's workflow state in the key-value store.
// Every write refreshes the TTL.
type SessionStore struct {
	kv  interfaces.KeyValue
	ttl time.Duration
}

func NewSessionStore(kv interfaces.KeyValue, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{kv: kv, ttl: ttl}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

// Snapshot is a loaded state together with the bytes it was read from.
// Commit only writes if the stored bytes are still the same.
type Snapshot struct {
	State workflow.State
	raw   []byte
}

func (s *SessionStore) Create(ctx context.Context) (string, workflow.State, error) {
	id := uuid.NewString()
	st := workflow.NewState()
	if err := s.Save(ctx, id, st); err != nil {
		return "", workflow.State{}, err
	}
	return id, st, nil
}

func (s *SessionStore) Load(ctx context.Context, id string) (workflow.State, error) {
	snap, err := s.Snapshot(ctx, id)
	if err != nil {
		return workflow.State{}, err
	}
	return snap.State, nil
}

func (s *SessionStore) Snapshot(ctx context.Context, id string) (Snapshot, error) {
	if !validSessionID(id) {
		return Snapshot{}, ErrSessionNotFound
	}
	b, err := s.kv.Get(ctx, sessionKey(id))
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return Snapshot{}, ErrSessionNotFound
	}
	if err != nil {
		return Snapshot{}, err
	}
	var st workflow.State
	if err := json.Unmarshal(b, &st); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{State: st, raw: b}, nil
}

func (s *SessionStore) Save(ctx context.Context, id string, st workflow.State) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, sessionKey(id), b, s.ttl)
}

// Commit stores next if nothing wrote the session since snap was taken,
// otherwise it returns ErrSessionChanged.
func (s *SessionStore) Commit(ctx context.Context, id string, snap Snapshot, next workflow.State) error {
	b, err := json.Marshal(next)
	if err != nil {
		return err
	}
	return s.kv.Update(ctx, sessionKey(id), s.ttl, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, ErrSessionNotFound
		}
		if !bytes.Equal(current, snap.raw) {
			return nil, ErrSessionChanged
		}
		return b, nil
	})
}

// Mutate applies fn to the stored state atomically. fn must not do I/O.
func (s *SessionStore) Mutate(ctx context.Context, id string, fn func(st *workflow.State) error) (workflow.State, error) {
	if !validSessionID(id) {
		return workflow.State{}, ErrSessionNotFound
	}
	var out workflow.State
	err := s.kv.Update(ctx, sessionKey(id), s.ttl, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, ErrSessionNotFound
		}
		var st workflow.State
		if err := json.Unmarshal(current, &st); err != nil {
			return nil, err
		}
		if err := fn(&st); err != nil {
			return nil, err
		}
		out = st
		return json.Marshal(st)
	})
	if err != nil {
		return workflow.State{}, err
	}
	return out, nil
}

// Lock takes the per-session lock that serializes steps doing gateway or
// profile-store I/O. It waits up to lockWait, then fails with ErrSessionBusy.
// The lock expires on its own after lockTTL if the holder dies.
func (s *SessionStore) Lock(ctx context.Context, id string) (func(), error) {
	if !validSessionID(id) {
		return nil, ErrSessionNotFound
	}
	key := lockKeyPrefix + id
	token := []byte(uuid.NewString())
	deadline := time.Now().Add(lockWait)

	for {
		err := s.kv.Update(ctx, key, lockTTL, func(current []byte) ([]byte, error) {
			if current != nil {
				return nil, errLockHeld
			}
			return token, nil
		})
		if err == nil {
			break
		}
		if !errors.Is(err, errLockHeld) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, ErrSessionBusy
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPoll):
		}
	}

	return func() {
		bg := context.WithoutCancel(ctx)
		if cur, err := s.kv.Get(bg, key); err == nil && bytes.Equal(cur, token) {
			_ = s.kv.Delete(bg, key)
		}
	}, nil
}

// PaymentBinding is what a payment reference resolves to: the session that
// opened it and who is paying.
type PaymentBinding struct {
	SessionID        string             `json:"session_id"`
	Applicant        workflow.Applicant `json:"applicant"`
	AmountMinorUnits int64              `json:"amount_minor_units"`
	Currency         string             `json:"currency"`
}

// BindReference remembers which session and applicant opened a payment, for
// webhooks and late confirmations.
func (s *SessionStore) BindReference(ctx context.Context, sessionID string, p workflow.PendingPayment) error {
	b, err := json.Marshal(PaymentBinding{
		SessionID:        sessionID,
		Applicant:        p.Applicant,
		AmountMinorUnits: p.AmountMinorUnits,
		Currency:         p.Currency,
	})
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, referenceKeyPrefix+p.Reference, b, referenceTTL)
}

func (s *SessionStore) ResolveReference(ctx context.Context, reference string) (*PaymentBinding, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrReferenceNotFound
	}
	b, err := s.kv.Get(ctx, referenceKeyPrefix+reference)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return nil, ErrReferenceNotFound
	}
	if err != nil {
		return nil, err
	}
	var binding PaymentBinding
	if err := json.Unmarshal(b, &binding); err != nil {
		return nil, err
	}
	return &binding, nil
}

func validSessionID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
