package httpapi

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"posmbe/backend/internal/domain"
	"posmbe/backend/internal/store"
)

const tokenIssuer = "posmbe"

var errInvalidCredentials = errors.New("invalid credentials")

// UserStore is the slice of the repository the auth manager needs.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
	GetShop(ctx context.Context, shopID int64) (*domain.Shop, error)
}

type AuthManager struct {
	mu         sync.RWMutex
	secret     []byte
	adminTTL   time.Duration
	managerTTL time.Duration
	userStore  UserStore
	users      map[string]credential
}

type credential struct {
	id       int64
	name     string
	password string
	role     string
	shopID   *int64
	active   bool
	created  time.Time
}

type posClaims struct {
	jwtlib.RegisteredClaims
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	ShopID   *int64 `json:"shop_id,omitempty"`
}

func NewAuthManager(secret string, adminTTL time.Duration, managerTTL time.Duration, userStore UserStore) *AuthManager {
	if adminTTL <= 0 {
		adminTTL = 10 * time.Minute
	}
	if managerTTL <= 0 {
		managerTTL = 2 * time.Hour
	}

	manager := &AuthManager{
		secret:     []byte(secret),
		adminTTL:   adminTTL,
		managerTTL: managerTTL,
		userStore:  userStore,
		users:      make(map[string]credential),
	}
	manager.bootstrapUsers(context.Background())
	return manager
}

// Login checks credentials for an account of the given role. A valid
// account presented at the other role's endpoint is rejected like a bad
// password.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest, role string) (domain.LoginResponse, error) {
	a.bootstrapUsers(ctx)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	a.mu.RLock()
	cred, ok := a.users[username]
	a.mu.RUnlock()
	if !ok {
		return domain.LoginResponse{}, errInvalidCredentials
	}

	if !verifyPassword(cred.password, req.Password) || cred.role != role {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !cred.active {
		return domain.LoginResponse{}, errors.New("account is inactive")
	}

	ttl := a.managerTTL
	if role == domain.RoleAdmin {
		ttl = a.adminTTL
	}
	expiresAt := time.Now().UTC().Add(ttl)
	token, err := a.sign(username, cred, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		Message:     "login successful",
		AccessToken: token,
		Role:        cred.role,
		ShopID:      cred.shopID,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	switch claims.Role {
	case domain.RoleAdmin:
	case domain.RoleManager:
		if claims.ShopID == nil {
			return domain.Actor{}, errors.New("manager token without shop")
		}
	default:
		return domain.Actor{}, errors.New("invalid token role")
	}
	return domain.Actor{ID: claims.UserID, Username: sub, Role: claims.Role, ShopID: claims.ShopID}, nil
}

func (a *AuthManager) sign(username string, cred credential, expiresAt time.Time) (string, error) {
	claims := posClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		UserID:   cred.id,
		Username: username,
		Role:     cred.role,
		ShopID:   cred.shopID,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ParseUserCreation turns a raw request into an admin or manager creation,
// rejecting anything that cannot become a valid account.
func ParseUserCreation(req domain.UserCreateRequest) (domain.UserCreation, error) {
	creds := domain.UserCredentials{
		Name:     strings.TrimSpace(req.Name),
		Username: strings.ToLower(strings.TrimSpace(req.Username)),
		Password: req.Password,
	}
	if len(creds.Username) < 4 {
		return nil, store.Invalid("username", "username must be at least 4 characters")
	}
	if strings.ContainsAny(creds.Username, " \t\r\n") {
		return nil, store.Invalid("username", "username must not contain spaces")
	}
	if len(strings.TrimSpace(creds.Password)) < 6 {
		return nil, store.Invalid("password", "password must be at least 6 characters")
	}

	switch strings.ToLower(strings.TrimSpace(req.Role)) {
	case domain.RoleAdmin:
		if req.ShopID != nil {
			return nil, store.Invalid("shop_id", "admins are not bound to a shop")
		}
		return domain.AdminCreation{UserCredentials: creds}, nil
	case domain.RoleManager:
		if req.ShopID == nil || *req.ShopID < 1 {
			return nil, store.Invalid("shop_id", "managers need a shop_id")
		}
		return domain.ManagerCreation{UserCredentials: creds, ShopID: *req.ShopID}, nil
	default:
		return nil, store.Invalid("role", "role must be admin or manager")
	}
}

func (a *AuthManager) CreateUser(ctx context.Context, creation domain.UserCreation) (domain.UserAccount, error) {
	a.bootstrapUsers(ctx)
	creds := creation.Credentials()

	a.mu.RLock()
	_, exists := a.users[creds.Username]
	a.mu.RUnlock()
	if exists {
		return domain.UserAccount{}, store.Conflictf("username %s already exists", creds.Username)
	}

	account := domain.UserAccount{
		Name:      creds.Name,
		Username:  creds.Username,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	switch c := creation.(type) {
	case domain.AdminCreation:
		account.Role = domain.RoleAdmin
	case domain.ManagerCreation:
		if a.userStore != nil {
			if _, err := a.userStore.GetShop(ctx, c.ShopID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return domain.UserAccount{}, store.Invalid("shop_id", fmt.Sprintf("shop %d does not exist", c.ShopID))
				}
				return domain.UserAccount{}, err
			}
		}
		shopID := c.ShopID
		account.Role = domain.RoleManager
		account.ShopID = &shopID
	}

	passwordHash, err := hashPassword(creds.Password)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("failed to hash password: %w", err)
	}
	account.Password = passwordHash

	if a.userStore != nil {
		created, err := a.userStore.CreateUser(ctx, account)
		if err != nil {
			return domain.UserAccount{}, err
		}
		account = *created
	}

	a.mu.Lock()
	a.users[account.Username] = credentialFor(account)
	a.mu.Unlock()

	return account, nil
}

func (a *AuthManager) ListUsers(ctx context.Context) []domain.UserAccount {
	a.bootstrapUsers(ctx)
	a.mu.RLock()
	result := make([]domain.UserAccount, 0, len(a.users))
	for username, user := range a.users {
		result = append(result, domain.UserAccount{
			ID:        user.id,
			Name:      user.name,
			Username:  username,
			Role:      user.role,
			ShopID:    user.shopID,
			Active:    user.active,
			CreatedAt: user.created,
		})
	}
	a.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result
}

// bootstrapUsers refreshes the credential cache from the user store and
// upgrades any plain-text passwords it finds to bcrypt hashes.
func (a *AuthManager) bootstrapUsers(ctx context.Context) {
	if a.userStore == nil {
		return
	}

	users, err := a.userStore.ListUsers(ctx)
	if err != nil || len(users) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, user := range users {
		username := strings.ToLower(strings.TrimSpace(user.Username))
		if username == "" {
			continue
		}
		if !isPasswordHash(user.Password) {
			hashed, err := hashPassword(user.Password)
			if err == nil {
				user.Password = hashed
				_ = a.userStore.UpdateUserPassword(ctx, username, hashed)
			}
		}
		a.users[username] = credentialFor(user)
	}
}

func credentialFor(user domain.UserAccount) credential {
	return credential{
		id:       user.ID,
		name:     user.Name,
		password: user.Password,
		role:     user.Role,
		shopID:   user.ShopID,
		active:   user.Active,
		created:  user.CreatedAt,
	}
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
