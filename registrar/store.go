// Package registrar is a reference REGISTER handler and location store:
// not part of the core stack, but a worked example of binding it to a
// persistent location store, per the stack's optional storage guidance.
package registrar

//go:generate errtrace -w .

import (
	"context"
	"database/sql"
	"time"

	"braces.dev/errtrace"
	_ "github.com/glebarez/go-sqlite" // registers the "sqlite" driver

	"github.com/coresip/coresip/internal/errorutil"
)

// ErrNoBinding is returned when an address-of-record has no current
// binding.
const ErrNoBinding errorutil.Error = "registrar: no binding for address-of-record"

// Binding is a single REGISTER contact for an address-of-record, RFC
// 3261 §10.
type Binding struct {
	Contact string
	Expires time.Time
}

// Store persists REGISTER bindings in a SQLite database.
type Store struct {
	db *sql.DB
}

// Open creates or attaches to a SQLite-backed location store at path
// (":memory:" for an ephemeral one).
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS bindings (
	aor TEXT NOT NULL,
	contact TEXT NOT NULL,
	expires_at TIMESTAMP NOT NULL,
	PRIMARY KEY (aor, contact)
)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errtrace.Wrap(err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return errtrace.Wrap(s.db.Close()) }

// Bind upserts a contact binding for aor, expiring at expiresAt. A
// zero-duration Contact (expires <= now) removes the binding instead,
// per RFC 3261 §10.2.2's Expires: 0 de-registration.
func (s *Store) Bind(ctx context.Context, aor, contact string, expiresAt time.Time) error {
	if !expiresAt.After(timeNow()) {
		_, err := s.db.ExecContext(ctx, `DELETE FROM bindings WHERE aor = ? AND contact = ?`, aor, contact)
		return errtrace.Wrap(err)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO bindings (aor, contact, expires_at) VALUES (?, ?, ?)
ON CONFLICT(aor, contact) DO UPDATE SET expires_at = excluded.expires_at`,
		aor, contact, expiresAt)
	return errtrace.Wrap(err)
}

// Lookup returns every unexpired binding currently registered for aor.
func (s *Store) Lookup(ctx context.Context, aor string) ([]Binding, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT contact, expires_at FROM bindings WHERE aor = ? AND expires_at > ?`, aor, timeNow())
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	defer rows.Close()

	var bindings []Binding
	for rows.Next() {
		var b Binding
		if err := rows.Scan(&b.Contact, &b.Expires); err != nil {
			return nil, errtrace.Wrap(err)
		}
		bindings = append(bindings, b)
	}
	if len(bindings) == 0 {
		return nil, errtrace.Wrap(ErrNoBinding)
	}
	return bindings, errtrace.Wrap(rows.Err())
}

// timeNow is a seam so tests can't be broken by wall-clock flakiness in
// expiry comparisons; production always uses the real clock.
var timeNow = time.Now
