package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"posmbe/backend/internal/cache"
	"posmbe/backend/internal/domain"
	"posmbe/backend/internal/store"
	"posmbe/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	receipts   cache.SaleReceiptCache
	receiptTTL time.Duration
	now        func() time.Time
}

func New(repo store.Repository, receipts cache.SaleReceiptCache, receiptTTL time.Duration) *Service {
	if receipts == nil {
		receipts = cache.NoopSaleReceiptCache{}
	}
	if receiptTTL <= 0 {
		receiptTTL = 24 * time.Hour
	}

	return &Service{
		repo:       repo,
		receipts:   receipts,
		receiptTTL: receiptTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) CreateShop(ctx context.Context, req domain.ShopCreateRequest) (domain.Shop, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Shop{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Shop{}, store.Invalid("name", "shop name is required")
	}

	created, err := s.repo.CreateShop(ctx, domain.Shop{Name: name, Location: strings.TrimSpace(req.Location)})
	if err != nil {
		return domain.Shop{}, err
	}

	s.logAudit(ctx, &created.ID, "shop_create", "shop", fmt.Sprint(created.ID), "name="+created.Name)
	return *created, nil
}

func (s *Service) ListShops(ctx context.Context) ([]domain.Shop, error) {
	return s.repo.ListShops(ctx)
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse(domain.DateLayout, date)
		if err != nil {
			return nil, store.Invalid("date", "expected YYYY-MM-DD")
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

// RecordAudit lets collaborators outside the service, such as user
// provisioning, write to the same audit trail.
func (s *Service) RecordAudit(ctx context.Context, shopID *int64, action string, entityType string, entityID string, detail string) {
	s.logAudit(ctx, shopID, action, entityType, entityID, detail)
}

func (s *Service) logAudit(ctx context.Context, shopID *int64, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ShopID:        shopID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.now(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || !actor.IsAdmin() {
		return fmt.Errorf("admin role required: %w", store.ErrForbidden)
	}
	return nil
}

// authorizeShop rejects a manager touching another shop. Admins and
// actor-less internal calls pass.
func authorizeShop(ctx context.Context, shopID int64) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.IsAdmin() {
		return nil
	}
	if actor.ShopID == nil || *actor.ShopID != shopID {
		return fmt.Errorf("shop %d is outside your scope: %w", shopID, store.ErrForbidden)
	}
	return nil
}

// scopeShop resolves the shop filter for a lookup. Managers are pinned to
// their own shop; asking for another one is forbidden.
func scopeShop(ctx context.Context, requested *int64) (*int64, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.IsAdmin() {
		return requested, nil
	}
	if actor.ShopID == nil {
		return nil, fmt.Errorf("manager without a shop: %w", store.ErrForbidden)
	}
	if requested != nil && *requested != *actor.ShopID {
		return nil, fmt.Errorf("shop %d is outside your scope: %w", *requested, store.ErrForbidden)
	}
	own := *actor.ShopID
	return &own, nil
}

// checkCents rejects amounts finer than the two decimal places money
// columns are stored at.
func checkCents(field string, amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(2)) {
		return store.Invalid(field, "at most two decimal places are allowed")
	}
	return nil
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	return "system"
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
