package httpapi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"posmbe/backend/internal/domain"
	"posmbe/backend/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	shops   map[int64]domain.Shop
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	user.ID = int64(len(s.users) + 1)
	s.users[user.Username] = user
	return &user, nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func (s *userStoreStub) GetShop(_ context.Context, shopID int64) (*domain.Shop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	shop, ok := s.shops[shopID]
	if !ok {
		return nil, store.NotFoundf("shop %d", shopID)
	}
	return &shop, nil
}

const testSecret = "test-secret-key-that-is-32-chars!"

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	users := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				ID:        1,
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager(testSecret, time.Minute, time.Hour, users)
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"}, domain.RoleAdmin); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	stored, _ := users.ListUsers(context.Background())
	if len(stored) != 1 || stored[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !isPasswordHash(stored[0].Password) {
		t.Fatalf("expected bcrypt hash, got %q", stored[0].Password)
	}
	if users.updates == 0 {
		t.Fatalf("expected the store to receive the upgraded hash")
	}
}

func TestLoginIsRoleSpecific(t *testing.T) {
	shopID := int64(3)
	users := &userStoreStub{
		users: map[string]domain.UserAccount{
			"till": {ID: 9, Username: "till", Password: "secret-pass", Role: domain.RoleManager, ShopID: &shopID, Active: true},
		},
	}
	manager := NewAuthManager(testSecret, time.Minute, time.Hour, users)
	ctx := context.Background()

	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "till", Password: "secret-pass"}, domain.RoleAdmin); !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected manager to be refused at admin login, got %v", err)
	}

	resp, err := manager.Login(ctx, domain.LoginRequest{Username: "TILL", Password: "secret-pass"}, domain.RoleManager)
	if err != nil {
		t.Fatalf("manager login failed: %v", err)
	}
	if resp.ShopID == nil || *resp.ShopID != 3 {
		t.Fatalf("expected shop 3 in login response, got %v", resp.ShopID)
	}

	expires, err := time.Parse(time.RFC3339, resp.ExpiresAt)
	if err != nil {
		t.Fatalf("bad expires_at: %v", err)
	}
	if ttl := time.Until(expires); ttl < 50*time.Minute || ttl > time.Hour+time.Minute {
		t.Fatalf("expected roughly the manager ttl, got %s", ttl)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.ID != 9 || actor.Username != "till" || actor.Role != domain.RoleManager || actor.ShopID == nil || *actor.ShopID != 3 {
		t.Fatalf("unexpected actor from token: %+v", actor)
	}

	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "till", Password: "wrong-pass"}, domain.RoleManager); !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected wrong password to fail, got %v", err)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	users := &userStoreStub{users: map[string]domain.UserAccount{
		"admin": {ID: 1, Username: "admin", Password: "admin123", Role: domain.RoleAdmin, Active: true},
	}}
	issuer := NewAuthManager("another-secret-that-is-32-chars!!", time.Minute, time.Hour, users)
	resp, err := issuer.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"}, domain.RoleAdmin)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	verifier := NewAuthManager(testSecret, time.Minute, time.Hour, nil)
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
	if _, err := verifier.ParseToken("not-a-token"); err == nil {
		t.Fatalf("expected garbage token to be rejected")
	}
}

func TestParseUserCreation(t *testing.T) {
	shop := int64(1)

	creation, err := ParseUserCreation(domain.UserCreateRequest{Name: "Bilal", Username: " Bilal ", Password: "secret1", Role: "manager", ShopID: &shop})
	if err != nil {
		t.Fatalf("parse manager failed: %v", err)
	}
	mc, ok := creation.(domain.ManagerCreation)
	if !ok || mc.ShopID != 1 || mc.Username != "bilal" {
		t.Fatalf("unexpected manager creation: %#v", creation)
	}

	creation, err = ParseUserCreation(domain.UserCreateRequest{Username: "owner", Password: "secret1", Role: "ADMIN"})
	if err != nil {
		t.Fatalf("parse admin failed: %v", err)
	}
	if _, ok := creation.(domain.AdminCreation); !ok {
		t.Fatalf("expected admin creation, got %#v", creation)
	}

	bad := map[string]domain.UserCreateRequest{
		"short username":  {Username: "abc", Password: "secret1", Role: "admin"},
		"spaced username": {Username: "ab cd", Password: "secret1", Role: "admin"},
		"short password":  {Username: "abcd", Password: "123", Role: "admin"},
		"manager no shop": {Username: "abcd", Password: "secret1", Role: "manager"},
		"admin with shop": {Username: "abcd", Password: "secret1", Role: "admin", ShopID: &shop},
		"unknown role":    {Username: "abcd", Password: "secret1", Role: "cashier"},
	}
	for name, req := range bad {
		if _, err := ParseUserCreation(req); !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", name, err)
		}
	}
}

func TestCreateUserChecksShopAndDuplicates(t *testing.T) {
	users := &userStoreStub{shops: map[int64]domain.Shop{1: {ID: 1, Name: "Main"}}}
	manager := NewAuthManager(testSecret, time.Minute, time.Hour, users)
	ctx := context.Background()
	creds := domain.UserCredentials{Name: "Bilal", Username: "bilal", Password: "secret1"}

	if _, err := manager.CreateUser(ctx, domain.ManagerCreation{UserCredentials: creds, ShopID: 7}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected unknown shop to be rejected, got %v", err)
	}

	user, err := manager.CreateUser(ctx, domain.ManagerCreation{UserCredentials: creds, ShopID: 1})
	if err != nil {
		t.Fatalf("create manager failed: %v", err)
	}
	if user.Role != domain.RoleManager || user.ShopID == nil || *user.ShopID != 1 || user.ID == 0 {
		t.Fatalf("unexpected created user: %+v", user)
	}
	if !isPasswordHash(user.Password) {
		t.Fatalf("expected stored password to be hashed")
	}

	if _, err := manager.CreateUser(ctx, domain.AdminCreation{UserCredentials: creds}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected duplicate username to conflict, got %v", err)
	}

	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "bilal", Password: "secret1"}, domain.RoleManager); err != nil {
		t.Fatalf("new manager should be able to log in: %v", err)
	}
	if listed := manager.ListUsers(ctx); len(listed) != 1 || listed[0].Username != "bilal" {
		t.Fatalf("unexpected user list: %+v", listed)
	}
}
