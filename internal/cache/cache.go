package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"posmbe/backend/internal/domain"
)

// ErrReceiptPending is returned by Get while another submission holds the
// key and has not stored its receipt yet.
var ErrReceiptPending = errors.New("sale submission with this idempotency key is in progress")

const pendingMarker = "pending"

// SaleReceiptCache remembers the receipt of a submitted sale under the
// client's idempotency key so a retried submission does not sell twice.
// Reserve claims a key before the sale is written; only the holder may
// Release it (on failure) or Set the receipt.
type SaleReceiptCache interface {
	Get(ctx context.Context, key string) (*domain.SaleReceipt, bool, error)
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
	Set(ctx context.Context, key string, value *domain.SaleReceipt, ttl time.Duration) error
}

// SaleReceiptKey scopes a client idempotency key to the submitting user.
func SaleReceiptKey(username string, idempotencyKey string) string {
	sum := sha256.Sum256([]byte(username + "\x00" + idempotencyKey))
	return "posmbe:sale:" + hex.EncodeToString(sum[:])
}

type NoopSaleReceiptCache struct{}

func (NoopSaleReceiptCache) Get(_ context.Context, _ string) (*domain.SaleReceipt, bool, error) {
	return nil, false, nil
}

func (NoopSaleReceiptCache) Reserve(_ context.Context, _ string, _ time.Duration) (bool, error) {
	return true, nil
}

func (NoopSaleReceiptCache) Release(_ context.Context, _ string) error {
	return nil
}

func (NoopSaleReceiptCache) Set(_ context.Context, _ string, _ *domain.SaleReceipt, _ time.Duration) error {
	return nil
}
