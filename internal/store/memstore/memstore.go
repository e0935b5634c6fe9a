// Package memstore is an in-process Store with a change log. It backs the
// test suites and the memory:// STORE_URI.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/store"
)

type change struct {
	seq        int64
	kind       store.EventKind
	collection string
	doc        store.Doc
}

// Store keeps every collection in maps guarded by one mutex. Change events
// are appended to a log; streams wait on a broadcast channel.
type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]store.Doc
	log         []change
	seq         int64
	wake        chan struct{}
	unavailable bool
	closed      bool
}

// New returns an empty store.
func New() *Store {
	return &Store{
		collections: make(map[string]map[string]store.Doc),
		wake:        make(chan struct{}),
	}
}

// SetUnavailable makes every call fail with apperr.ErrStoreUnavailable until
// reset. Streams stay open and resume once the store is back.
func (s *Store) SetUnavailable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = v
	if !v {
		s.broadcastLocked()
	}
}

func (s *Store) checkLocked() error {
	if s.closed {
		return apperr.Unavailable(fmt.Errorf("memstore closed"))
	}
	if s.unavailable {
		return apperr.Unavailable(fmt.Errorf("memstore offline"))
	}
	return nil
}

func (s *Store) coll(name string) map[string]store.Doc {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]store.Doc)
		s.collections[name] = c
	}
	return c
}

func (s *Store) Insert(ctx context.Context, collection string, doc store.Doc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := store.Key(collection, doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return err
	}
	c := s.coll(collection)
	if _, ok := c[key]; ok {
		return fmt.Errorf("%s %s: %w", collection, key, apperr.ErrDuplicate)
	}
	stored := normalizeDoc(doc)
	c[key] = stored
	s.appendLocked(store.Insert, collection, stored)
	return nil
}

func (s *Store) FindOne(ctx context.Context, collection string, filter store.Filter) (store.Doc, error) {
	docs, err := s.FindMany(ctx, collection, filter, store.FindOptions{Sort: []store.SortKey{store.Asc(store.KeyField(collection))}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%s %s: %w", collection, filter, apperr.ErrNotFound)
	}
	return docs[0], nil
}

func (s *Store) FindMany(ctx context.Context, collection string, filter store.Filter, opts store.FindOptions) ([]store.Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return nil, err
	}
	var out []store.Doc
	for _, d := range s.coll(collection) {
		if filter.Match(d) {
			out = append(out, d.Clone())
		}
	}
	keys := append(append([]store.SortKey(nil), opts.Sort...), store.Asc(store.KeyField(collection)))
	sort.SliceStable(out, func(i, j int) bool { return store.Less(keys, out[i], out[j]) })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *Store) UpdateOneIf(ctx context.Context, collection string, filter store.Filter, m store.Mutation) (store.Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return nil, err
	}
	c := s.coll(collection)
	var (
		matchKey string
		matches  int
	)
	for k, d := range c {
		if filter.Match(d) {
			matchKey = k
			matches++
		}
	}
	if matches != 1 {
		return nil, fmt.Errorf("%s %s: %w", collection, filter, apperr.ErrNotMatched)
	}
	prior := c[matchKey]
	next := normalizeDoc(m.Apply(prior))
	next[store.KeyField(collection)] = prior[store.KeyField(collection)]
	c[matchKey] = next
	s.appendLocked(store.Update, collection, next)
	return prior.Clone(), nil
}

// Watch opens a stream. Tokens are positions in the change log.
func (s *Store) Watch(ctx context.Context, opts store.WatchOptions) (store.ChangeStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(); err != nil {
		return nil, err
	}
	pos := s.seq
	switch opts.ResumeAfter {
	case "":
	case store.TokenOrigin:
		pos = 0
	default:
		n, err := strconv.ParseInt(opts.ResumeAfter, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("resume token %q: %w", opts.ResumeAfter, apperr.ErrInvalid)
		}
		pos = n
	}
	return &stream{s: s, opts: opts, pos: pos, done: make(chan struct{})}, nil
}

// Close wakes every stream; subsequent calls fail.
func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.broadcastLocked()
	return nil
}

// Snapshot returns copies of every document of collection ordered by key.
func (s *Store) Snapshot(collection string) []store.Doc {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Doc, 0, len(s.collections[collection]))
	for _, d := range s.collections[collection] {
		out = append(out, d.Clone())
	}
	key := store.KeyField(collection)
	sort.Slice(out, func(i, j int) bool { return out[i].String(key) < out[j].String(key) })
	return out
}

// LastToken returns the token of the newest change ("0" when empty).
func (s *Store) LastToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strconv.FormatInt(s.seq, 10)
}

func (s *Store) appendLocked(kind store.EventKind, collection string, doc store.Doc) {
	s.seq++
	s.log = append(s.log, change{seq: s.seq, kind: kind, collection: collection, doc: doc.Clone()})
	s.broadcastLocked()
}

func (s *Store) broadcastLocked() {
	close(s.wake)
	s.wake = make(chan struct{})
}

func normalizeDoc(d store.Doc) store.Doc {
	out := make(store.Doc, len(d))
	for k, v := range d.Clone() {
		out[k] = store.Normalize(v)
	}
	return out
}

var _ store.Store = (*Store)(nil)
