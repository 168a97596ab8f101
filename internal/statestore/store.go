// Package statestore is the ephemeral, TTL-bounded key/value and list store
// backing the duplicate window.
package statestore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidOp = errors.New("invalid store operation")
	ErrWrongType = errors.New("operation against a key holding the wrong kind of value")
)

type OpKind int

const (
	OpSet OpKind = iota + 1
	OpPushFront
	OpTrim
	OpExpire
	OpDelete
	OpListRemove
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpPushFront:
		return "push_front"
	case OpTrim:
		return "trim"
	case OpExpire:
		return "expire"
	case OpDelete:
		return "delete"
	case OpListRemove:
		return "list_remove"
	default:
		return fmt.Sprintf("op(%d)", int(k))
	}
}

// Op is one mutation inside a Commit.
type Op struct {
	Kind   OpKind
	Key    string
	Value  string
	TTL    time.Duration
	MaxLen int
}

func Set(key, value string, ttl time.Duration) Op {
	return Op{Kind: OpSet, Key: key, Value: value, TTL: ttl}
}

func PushFront(key, value string) Op {
	return Op{Kind: OpPushFront, Key: key, Value: value}
}

func Trim(key string, maxLen int) Op {
	return Op{Kind: OpTrim, Key: key, MaxLen: maxLen}
}

func Expire(key string, ttl time.Duration) Op {
	return Op{Kind: OpExpire, Key: key, TTL: ttl}
}

func Delete(key string) Op {
	return Op{Kind: OpDelete, Key: key}
}

func ListRemove(key, value string) Op {
	return Op{Kind: OpListRemove, Key: key, Value: value}
}

func (op Op) validate() error {
	if op.Key == "" {
		return fmt.Errorf("%w: %s with empty key", ErrInvalidOp, op.Kind)
	}
	switch op.Kind {
	case OpSet, OpPushFront, OpDelete, OpListRemove:
	case OpTrim:
		if op.MaxLen <= 0 {
			return fmt.Errorf("%w: trim %q to %d", ErrInvalidOp, op.Key, op.MaxLen)
		}
	case OpExpire:
		if op.TTL <= 0 {
			return fmt.Errorf("%w: expire %q with ttl %s", ErrInvalidOp, op.Key, op.TTL)
		}
	default:
		return fmt.Errorf("%w: unknown kind %s", ErrInvalidOp, op.Kind)
	}
	return nil
}

func validateOps(ops []Op) error {
	for _, op := range ops {
		if err := op.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Store is shared by every worker; callers namespace keys themselves.
// Commit applies all ops or none.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	PushFront(ctx context.Context, key, value string) error
	Trim(ctx context.Context, key string, maxLen int) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	ListLen(ctx context.Context, key string) (int, error)
	ListRange(ctx context.Context, key string) ([]string, error)
	Commit(ctx context.Context, ops ...Op) error
	Ping(ctx context.Context) error
	Close() error
}
