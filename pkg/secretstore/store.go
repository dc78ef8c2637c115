package secretstore

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("secret not found")

// Store keeps opaque secrets addressed by a service/account pair.
// Delete of a missing entry is not an error.
type Store interface {
	Save(ctx context.Context, service, account string, data []byte) error
	Read(ctx context.Context, service, account string) ([]byte, error)
	Delete(ctx context.Context, service, account string) error
}

func key(service, account string) string {
	return service + ":" + account
}
