package store

import (
	"context"
	"database/sql"
	"time"
)

func (store *Store) CreateSession(ctx context.Context, session Session) error {
	_, err := store.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		session.ID, session.UserID, session.CreatedAt, session.ExpiresAt)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	return err
}

func (store *Store) FindSession(ctx context.Context, id string) (Session, error) {
	var session Session
	err := store.db.QueryRowContext(ctx,
		"SELECT id, user_id, created_at, expires_at FROM sessions WHERE id = ?",
		id).Scan(&session.ID, &session.UserID, &session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		return Session{}, notFound(err)
	}
	return session, nil
}

func (store *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := store.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteExpiredSessions removes sessions that expired before t and returns
// how many were removed.
func (store *Store) DeleteExpiredSessions(ctx context.Context, t time.Time) (int64, error) {
	res, err := store.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at < ?", t.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
