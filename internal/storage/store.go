package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Skotchmaster/shiken_shop/pkg/logging"
)

var ErrNotFound = errors.New("key not found")

// Store is one namespace of JSON values addressed by key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type Backend interface {
	Scope(namespace string) Store
	Close() error
}

const SharedNamespace = "shop"

func SessionNamespace(sessionID string) string { return "session:" + sessionID }

// Load decodes key into a T. A missing key yields def. A value that does not
// decode also yields def; it is logged and left in place for the next Save to
// overwrite.
func Load[T any](ctx context.Context, s Store, key string, def T) (T, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("load %s: %w", key, err)
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		logging.FromContext(ctx).Warn("storage_load_malformed", "key", key, "error", err)
		return def, nil
	}
	return v, nil
}

func Save[T any](ctx context.Context, s Store, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
