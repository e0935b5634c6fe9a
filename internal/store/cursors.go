package store

import (
	"context"
	"errors"
	"time"

	"delivery-orchestrator/internal/apperr"
)

// CursorStore keeps one resume token per watcher in the Cursors collection.
type CursorStore struct {
	st  Store
	now func() time.Time
}

// NewCursorStore returns a CursorStore on st.
func NewCursorStore(st Store) *CursorStore {
	return &CursorStore{st: st, now: func() time.Time { return time.Now().UTC() }}
}

// Load returns the saved token of name or "" when the watcher never acked.
func (c *CursorStore) Load(ctx context.Context, name string) (string, error) {
	d, err := c.st.FindOne(ctx, Cursors, Where(Eq("name", name)))
	if errors.Is(err, apperr.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return d.String("token"), nil
}

// Save stores token for name.
func (c *CursorStore) Save(ctx context.Context, name, token string) error {
	now := c.now()
	_, err := c.st.UpdateOneIf(ctx, Cursors, Where(Eq("name", name)), Set(Doc{"token": token, "updatedAt": now}))
	if !errors.Is(err, apperr.ErrNotMatched) {
		return err
	}
	err = c.st.Insert(ctx, Cursors, Doc{"name": name, "token": token, "updatedAt": now})
	if errors.Is(err, apperr.ErrDuplicate) {
		_, err = c.st.UpdateOneIf(ctx, Cursors, Where(Eq("name", name)), Set(Doc{"token": token, "updatedAt": now}))
	}
	return err
}
