package statestore

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	value   string
	list    []string
	isList  bool
	expires time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

func (e *memoryEntry) clone() *memoryEntry {
	c := *e
	if e.list != nil {
		c.list = make([]string, len(e.list))
		copy(c.list, e.list)
	}
	return &c
}

// MemoryStore is an in-process Store. Commit stages every op on copies of
// the touched entries and publishes them only when all ops succeed.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	now        func() time.Time
	commitHook func(Op) error
}

type MemoryOption func(*MemoryStore)

func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCommitHook runs hook before each staged op; a non-nil error aborts the commit.
func WithCommitHook(hook func(Op) error) MemoryOption {
	return func(s *MemoryStore) {
		s.commitHook = hook
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lookup must be called with mu held.
func (s *MemoryStore) lookup(key string, now time.Time) *memoryEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if e.expired(now) {
		delete(s.entries, key)
		return nil
	}
	return e
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(key, s.now()) != nil, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key, s.now())
	if e == nil {
		return "", false, nil
	}
	if e.isList {
		return "", false, fmt.Errorf("%w: get %q", ErrWrongType, key)
	}
	return e.value, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.Commit(ctx, Set(key, value, ttl))
}

func (s *MemoryStore) PushFront(ctx context.Context, key, value string) error {
	return s.Commit(ctx, PushFront(key, value))
}

func (s *MemoryStore) Trim(ctx context.Context, key string, maxLen int) error {
	return s.Commit(ctx, Trim(key, maxLen))
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.Commit(ctx, Expire(key, ttl))
}

func (s *MemoryStore) ListLen(ctx context.Context, key string) (int, error) {
	items, err := s.ListRange(ctx, key)
	return len(items), err
}

func (s *MemoryStore) ListRange(ctx context.Context, key string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.lookup(key, s.now())
	if e == nil {
		return nil, nil
	}
	if !e.isList {
		return nil, fmt.Errorf("%w: range %q", ErrWrongType, key)
	}
	out := make([]string, len(e.list))
	copy(out, e.list)
	return out, nil
}

func (s *MemoryStore) Commit(ctx context.Context, ops ...Op) error {
	if err := validateOps(ops); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	staged := make(map[string]*memoryEntry, len(ops))
	stage := func(key string) *memoryEntry {
		if e, ok := staged[key]; ok {
			return e
		}
		var e *memoryEntry
		if current := s.lookup(key, now); current != nil {
			e = current.clone()
		}
		staged[key] = e
		return e
	}

	for i, op := range ops {
		if s.commitHook != nil {
			if err := s.commitHook(op); err != nil {
				return fmt.Errorf("commit aborted at op %d (%s %q): %w", i, op.Kind, op.Key, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		e := stage(op.Key)
		switch op.Kind {
		case OpSet:
			staged[op.Key] = &memoryEntry{value: op.Value, expires: expiry(now, op.TTL)}
		case OpPushFront:
			if e == nil {
				e = &memoryEntry{isList: true}
			} else if !e.isList {
				return fmt.Errorf("%w: push %q", ErrWrongType, op.Key)
			}
			e.list = append([]string{op.Value}, e.list...)
			staged[op.Key] = e
		case OpTrim:
			if e == nil {
				continue
			}
			if !e.isList {
				return fmt.Errorf("%w: trim %q", ErrWrongType, op.Key)
			}
			if len(e.list) > op.MaxLen {
				e.list = e.list[:op.MaxLen]
			}
		case OpExpire:
			if e != nil {
				e.expires = expiry(now, op.TTL)
			}
		case OpDelete:
			staged[op.Key] = nil
		case OpListRemove:
			if e == nil {
				continue
			}
			if !e.isList {
				return fmt.Errorf("%w: remove from %q", ErrWrongType, op.Key)
			}
			kept := e.list[:0]
			for _, v := range e.list {
				if v != op.Value {
					kept = append(kept, v)
				}
			}
			e.list = kept
			if len(e.list) == 0 {
				staged[op.Key] = nil
			}
		}
	}

	for key, e := range staged {
		if e == nil {
			delete(s.entries, key)
			continue
		}
		s.entries[key] = e
	}
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*memoryEntry)
	return nil
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}
