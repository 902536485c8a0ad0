package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"posmbe/backend/internal/domain"
	"posmbe/backend/internal/service"
	"posmbe/backend/internal/store"
)

type Options struct {
	AllowedOrigins     []string
	LoginRatePerMinute int
	LoginBurst         int
}

type API struct {
	service        *service.Service
	auth           *AuthManager
	allowedOrigins []string
	loginLimiter   *clientLimiter
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	if opts.LoginRatePerMinute <= 0 {
		opts.LoginRatePerMinute = 5
	}
	if opts.LoginBurst <= 0 {
		opts.LoginBurst = 5
	}
	return &API{
		service:        svc,
		auth:           auth,
		allowedOrigins: opts.AllowedOrigins,
		loginLimiter:   newClientLimiter(opts.LoginRatePerMinute, opts.LoginBurst),
	}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(securityHeaders)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMethodNotAllowed(w)
	})

	r.Get("/healthz", a.handleHealth)
	r.Post("/login", a.handleLogin(domain.RoleManager))
	r.Post("/admin-login", a.handleLogin(domain.RoleAdmin))

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth(domain.RoleAdmin, domain.RoleManager))

		r.Post("/stock/add", a.handleStockAdd)
		r.Put("/stock/update", a.handleStockUpdate)
		r.Get("/stock", a.handleStockList)
		r.Get("/stock/{shop_id}", a.handleStockList)
		r.Get("/check-stock", a.handleCheckStock)
		r.Get("/ledger", a.handleLedger)
		r.Get("/stock-edit-log", a.handleStockEditLog)

		r.Post("/customer", a.handleCustomer)
		r.Get("/invoice", a.handleInvoiceBootstrap)
		r.Post("/invoice-submission", a.handleInvoiceSubmission)
		r.Get("/api/sales", a.handleSales)
		r.Get("/api/sale/{sale_id}", a.handleSaleDetail)

		r.Get("/instalments", a.handleInstalments)
		r.Get("/instalment/{instalment_id}", a.handleInstalmentDetail)
		r.Post("/pay-instalment", a.handlePayInstalment)

		r.Get("/unpaid_sales", a.handleUnpaidSales)
		r.Get("/unpaid-sale/{ref}", a.handleUnpaidSale)
		r.Post("/pay-unpaid-sale", a.handlePayUnpaidSale)

		r.Get("/shops", a.handleShops)
	})

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth(domain.RoleAdmin))

		r.Post("/api/delete-ledger", a.handleDeleteLedger)
		r.Post("/api/delete-sale", a.handleDeleteSale)
		r.Post("/add-shop", a.handleAddShop)
		r.Post("/add-user", a.handleAddUser)
		r.Get("/users", a.handleUsers)
		r.Get("/api/audit-logs", a.handleAuditLogs)
	})

	return r
}

func (a *API) requireAuth(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authorization := strings.TrimSpace(r.Header.Get("Authorization"))
			if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
				writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
				return
			}

			token := strings.TrimSpace(authorization[len("Bearer "):])
			actor, err := a.auth.ParseToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err)
				return
			}

			if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
				writeError(w, http.StatusForbidden, errors.New("forbidden role"))
				return
			}

			next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
		})
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(role string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.loginLimiter.Allow(clientKey(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
			return
		}

		var req domain.LoginRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		resp, err := a.auth.Login(r.Context(), req, role)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		log.Printf("[http] %s %s %s %d %s ip=%s", requestID, r.Method, r.URL.Path, status, time.Since(startedAt), clientKey(r))
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Cache-Control", "no-store")

		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}
		next.ServeHTTP(w, r)
	})
}

// statusFor maps the store's error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidAmount), errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	var oos *store.OutOfStockError
	if errors.As(err, &oos) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     oos.Error(),
			"model":     oos.Model,
			"shop_id":   oos.ShopID,
			"available": oos.Available,
			"requested": oos.Requested,
		})
		return
	}
	writeError(w, statusFor(err), err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// optionalShopID reads shop_id from the path or the query string.
func optionalShopID(r *http.Request) (*int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "shop_id"))
	if raw == "" {
		raw = strings.TrimSpace(r.URL.Query().Get("shop_id"))
	}
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return nil, store.Invalid("shop_id", "shop_id must be a positive integer")
	}
	return &id, nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, name)), 10, 64)
	if err != nil || id < 1 {
		return 0, store.Invalid(name, name+" must be a positive integer")
	}
	return id, nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the cause only goes to the log.
	msg := err.Error()
	if status >= 500 {
		log.Printf("[http] internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
