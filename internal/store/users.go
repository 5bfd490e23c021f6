package store

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// NormalizeEmail is the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (store *Store) CreateUser(ctx context.Context, email, passwordHash string) (User, error) {
	email = NormalizeEmail(email)
	if email == "" || passwordHash == "" {
		return User{}, errors.New("store: missing required fields")
	}

	// check if the user already exists
	if _, err := store.FindUserByEmail(ctx, email); err == nil {
		return User{}, ErrDuplicate
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	ts := now()
	user := User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	_, err := store.db.ExecContext(ctx,
		"INSERT INTO users (id, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		user.ID, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return User{}, ErrDuplicate
		}
		return User{}, err
	}
	return user, nil
}

func (store *Store) FindUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := store.db.QueryRowContext(ctx,
		"SELECT id, email, password_hash, created_at, updated_at FROM users WHERE email = ?",
		NormalizeEmail(email)).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, notFound(err)
	}
	return user, nil
}

func (store *Store) FindUserByID(ctx context.Context, id string) (User, error) {
	var user User
	err := store.db.QueryRowContext(ctx,
		"SELECT id, email, password_hash, created_at, updated_at FROM users WHERE id = ?",
		id).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, notFound(err)
	}
	return user, nil
}

// UpdatePasswordHash replaces a user's stored credential.
func (store *Store) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	res, err := store.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?",
		passwordHash, now(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}
