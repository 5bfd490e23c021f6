package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const (
	KindBook  = "book"
	KindStory = "story"
)

// CreateFlipbook stores a new flipbook and fills in its id, page count and
// timestamps. The insert is a single transaction: either the whole record is
// visible or nothing is.
func (store *Store) CreateFlipbook(ctx context.Context, flipbook *Flipbook) error {
	if flipbook.UserID == "" {
		return errors.New("store: flipbook has no owner")
	}
	if flipbook.Kind == "" {
		flipbook.Kind = KindBook
	}
	if flipbook.Pages == nil {
		flipbook.Pages = []string{}
	}
	pages, err := json.Marshal(flipbook.Pages)
	if err != nil {
		return fmt.Errorf("store: encoding pages: %w", err)
	}

	ts := now()
	record := *flipbook
	record.ID = uuid.NewString()
	record.PageCount = len(record.Pages)
	record.CreatedAt = ts
	record.UpdatedAt = ts

	err = store.withTx(ctx, func(tx *sql.Tx) error {
		var owner string
		if err := tx.QueryRowContext(ctx, "SELECT id FROM users WHERE id = ?", record.UserID).Scan(&owner); err != nil {
			return fmt.Errorf("store: flipbook owner: %w", notFound(err))
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO flipbooks (id, user_id, title, kind, pages, page_count, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			record.ID, record.UserID, record.Title, record.Kind, string(pages), record.PageCount, record.CreatedAt, record.UpdatedAt)
		return err
	})
	if err != nil {
		return err
	}
	*flipbook = record
	return nil
}

const flipbookColumns = "id, user_id, title, kind, pages, page_count, created_at, updated_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanFlipbook(row scanner) (Flipbook, error) {
	var (
		flipbook Flipbook
		pages    string
	)
	err := row.Scan(&flipbook.ID, &flipbook.UserID, &flipbook.Title, &flipbook.Kind, &pages,
		&flipbook.PageCount, &flipbook.CreatedAt, &flipbook.UpdatedAt)
	if err != nil {
		return Flipbook{}, err
	}
	if err := json.Unmarshal([]byte(pages), &flipbook.Pages); err != nil {
		return Flipbook{}, fmt.Errorf("store: decoding pages of flipbook %s: %w", flipbook.ID, err)
	}
	if flipbook.Pages == nil {
		flipbook.Pages = []string{}
	}
	return flipbook, nil
}

func (store *Store) FindFlipbook(ctx context.Context, id string) (Flipbook, error) {
	row := store.db.QueryRowContext(ctx, "SELECT "+flipbookColumns+" FROM flipbooks WHERE id = ?", id)
	flipbook, err := scanFlipbook(row)
	if err != nil {
		return Flipbook{}, notFound(err)
	}
	return flipbook, nil
}

// ListFlipbooks returns a user's flipbooks, newest first.
func (store *Store) ListFlipbooks(ctx context.Context, userID string) ([]Flipbook, error) {
	rows, err := store.db.QueryContext(ctx,
		"SELECT "+flipbookColumns+" FROM flipbooks WHERE user_id = ? ORDER BY created_at DESC, id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	flipbooks := []Flipbook{}
	for rows.Next() {
		flipbook, err := scanFlipbook(rows)
		if err != nil {
			return nil, err
		}
		flipbooks = append(flipbooks, flipbook)
	}
	return flipbooks, rows.Err()
}

// UpdateFlipbook applies the set fields of update and returns the stored
// record. Replacing the pages also replaces the page count.
func (store *Store) UpdateFlipbook(ctx context.Context, id string, update FlipbookUpdate) (Flipbook, error) {
	var flipbook Flipbook
	err := store.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, "SELECT "+flipbookColumns+" FROM flipbooks WHERE id = ?", id)
		current, err := scanFlipbook(row)
		if err != nil {
			return notFound(err)
		}
		if update.Title != nil {
			current.Title = *update.Title
		}
		if update.Pages != nil {
			current.Pages = update.Pages
		}
		current.PageCount = len(current.Pages)
		current.UpdatedAt = now()

		pages, err := json.Marshal(current.Pages)
		if err != nil {
			return fmt.Errorf("store: encoding pages: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE flipbooks SET title = ?, pages = ?, page_count = ?, updated_at = ? WHERE id = ?",
			current.Title, string(pages), current.PageCount, current.UpdatedAt, id)
		flipbook = current
		return err
	})
	if err != nil {
		return Flipbook{}, err
	}
	return flipbook, nil
}

func (store *Store) DeleteFlipbook(ctx context.Context, id string) error {
	res, err := store.db.ExecContext(ctx, "DELETE FROM flipbooks WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}
