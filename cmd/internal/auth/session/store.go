package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"skywidget/cmd/security/seal"
	"skywidget/cmd/security/token"
)

// Store persists the single session record.
type Store interface {
	// Load returns the persisted session, or false when none is usable.
	// It never fails: IO, unseal and parse errors degrade to "no session".
	Load(ctx context.Context) (Session, bool)

	// Save overwrites the record. Errors are *PersistError.
	Save(ctx context.Context, s Session) error
}

// BlobStore is a whole-blob backend for one record.
type BlobStore interface {
	// Name identifies the backend in logs and PersistError.
	Name() string
	// ReadBlob returns ErrNoRecord when nothing has been written yet.
	ReadBlob(ctx context.Context) ([]byte, error)
	WriteBlob(ctx context.Context, blob []byte) error
}

// RecordStore encodes sessions as JSON records on top of a BlobStore and
// optionally seals them.
type RecordStore struct {
	blobs  BlobStore
	sealer *seal.Sealer
	log    *slog.Logger
}

// NewRecordStore wraps blobs. sealer may be nil (records stored as plain JSON).
func NewRecordStore(blobs BlobStore, sealer *seal.Sealer, log *slog.Logger) *RecordStore {
	if log == nil {
		log = slog.Default()
	}
	return &RecordStore{blobs: blobs, sealer: sealer, log: log}
}

// Load implements Store.
func (r *RecordStore) Load(ctx context.Context) (Session, bool) {
	backend := r.blobs.Name()

	blob, err := r.blobs.ReadBlob(ctx)
	if errors.Is(err, ErrNoRecord) {
		r.log.Info("session.store.load.empty", "backend", backend)
		return Session{}, false
	}
	if err != nil {
		r.log.Warn("session.store.load.fail", "backend", backend, "err", err)
		return Session{}, false
	}

	switch {
	case seal.IsSealed(blob) && r.sealer == nil:
		r.log.Warn("session.store.load.fail", "backend", backend, "reason", "sealed_without_key")
		return Session{}, false
	case seal.IsSealed(blob):
		blob, err = r.sealer.Open(blob)
		if err != nil {
			r.log.Warn("session.store.load.fail", "backend", backend, "reason", "unseal", "err", err)
			return Session{}, false
		}
	case r.sealer != nil:
		// Plain record written before a key was configured; resealed on next save.
		r.log.Info("session.store.load.unsealed", "backend", backend)
	}

	var s Session
	if err := json.Unmarshal(blob, &s); err != nil {
		r.log.Warn("session.store.load.fail", "backend", backend, "reason", "parse", "err", err)
		return Session{}, false
	}
	if !s.Valid() {
		r.log.Warn("session.store.load.fail", "backend", backend, "reason", "incomplete")
		return Session{}, false
	}

	r.log.Info("session.store.load.ok", "backend", backend, "account_id", s.AccountID, "access_fp", token.Fingerprint(s.AccessToken))
	return s, true
}

// Save implements Store.
func (r *RecordStore) Save(ctx context.Context, s Session) error {
	backend := r.blobs.Name()
	if !s.Valid() {
		return &PersistError{Backend: backend, Err: errors.New("incomplete session")}
	}

	blob, err := json.Marshal(s)
	if err != nil {
		return &PersistError{Backend: backend, Err: fmt.Errorf("encode: %w", err)}
	}
	if r.sealer != nil {
		if blob, err = r.sealer.Seal(blob); err != nil {
			return &PersistError{Backend: backend, Err: err}
		}
	}

	if err := r.blobs.WriteBlob(ctx, blob); err != nil {
		return &PersistError{Backend: backend, Err: err}
	}
	return nil
}
