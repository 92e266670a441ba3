package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoChange is returned by a Modify mutator to leave the document untouched.
// Modify then returns nil.
var ErrNoChange = errors.New("no change")

// Read loads the document stored under (kind, id). A missing document yields
// the zero value of T.
func Read[T any](ctx context.Context, s *Store, kind, id string) (T, error) {
	var doc T
	var body string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT body FROM documents WHERE kind = ? AND id = ?`), kind, id).Scan(&body)
	if err != nil {
		if isNoRows(err) {
			return doc, nil
		}
		return doc, fmt.Errorf("read %s/%s: %w", kind, id, err)
	}
	if err := decode(body, &doc); err != nil {
		return doc, fmt.Errorf("decode %s/%s: %w", kind, id, err)
	}
	return doc, nil
}

// Modify runs fn with exclusive access to the document under (kind, id) and
// persists the result. Within the process access is serialised per document;
// on postgres the row is also locked with SELECT ... FOR UPDATE. fn must not
// call back into the store.
func Modify[T any](ctx context.Context, s *Store, kind, id string, fn func(doc *T) error) (err error) {
	unlock := s.locks.lock(kind + "/" + id)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s/%s: %w", kind, id, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO documents (kind, id, body, updated_at) VALUES (?, ?, '', ?)
		ON CONFLICT (kind, id) DO NOTHING
	`), kind, id, nowUnix())
	if err != nil {
		return fmt.Errorf("ensure %s/%s: %w", kind, id, err)
	}

	query := `SELECT body FROM documents WHERE kind = ? AND id = ?`
	if s.driver == DriverPostgres {
		query += ` FOR UPDATE`
	}
	var body string
	if err = tx.QueryRowContext(ctx, s.rebind(query), kind, id).Scan(&body); err != nil {
		return fmt.Errorf("lock %s/%s: %w", kind, id, err)
	}

	var doc T
	if err = decode(body, &doc); err != nil {
		return fmt.Errorf("decode %s/%s: %w", kind, id, err)
	}

	if err = fn(&doc); err != nil {
		if errors.Is(err, ErrNoChange) {
			_ = tx.Rollback()
			return nil
		}
		return err
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", kind, id, err)
	}
	if _, err = tx.ExecContext(ctx, s.rebind(`UPDATE documents SET body = ?, updated_at = ? WHERE kind = ? AND id = ?`), string(encoded), nowUnix(), kind, id); err != nil {
		return fmt.Errorf("write %s/%s: %w", kind, id, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s/%s: %w", kind, id, err)
	}
	return nil
}

// Delete removes a document. Deleting a missing document is not an error.
func Delete(ctx context.Context, s *Store, kind, id string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM documents WHERE kind = ? AND id = ?`), kind, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", kind, id, err)
	}
	return nil
}

func decode(body string, out any) error {
	if body == "" {
		return nil
	}
	return json.Unmarshal([]byte(body), out)
}
