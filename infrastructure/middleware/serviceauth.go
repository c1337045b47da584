// Package middleware provides HTTP middleware for the service layer.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/h51assets/h51/infrastructure/errors"
	"github.com/h51assets/h51/infrastructure/logging"
)

// ServiceTokenHeader carries the signed admin/control-plane token.
const ServiceTokenHeader = "X-H51-Service-Token"

// DefaultServiceTokenExpiry is used by NewServiceTokenGenerator when the
// caller doesn't specify one.
const DefaultServiceTokenExpiry = time.Hour

// ServiceClaims identifies the service (h51server, h51ctl, ...) a token was
// minted for, per SPEC_FULL §11's admin/control-plane authentication.
type ServiceClaims struct {
	ServiceID string `json:"service_id"`
	jwt.RegisteredClaims
}

type serviceIDKey struct{}

// WithServiceID returns a new context carrying the authenticated service id.
func WithServiceID(ctx context.Context, serviceID string) context.Context {
	return context.WithValue(ctx, serviceIDKey{}, serviceID)
}

// GetServiceID extracts the service id set by ServiceAuthMiddleware.
func GetServiceID(ctx context.Context) string {
	id, _ := ctx.Value(serviceIDKey{}).(string)
	return id
}

// ServiceTokenGenerator mints HS256 service tokens, used by h51ctl to
// authenticate against the server's /admin surface.
type ServiceTokenGenerator struct {
	secret    []byte
	serviceID string
	expiry    time.Duration
}

// NewServiceTokenGenerator builds a generator signing tokens for serviceID
// with secret, expiring after expiry (or DefaultServiceTokenExpiry if zero).
func NewServiceTokenGenerator(secret []byte, serviceID string, expiry time.Duration) *ServiceTokenGenerator {
	if expiry <= 0 {
		expiry = DefaultServiceTokenExpiry
	}
	return &ServiceTokenGenerator{secret: secret, serviceID: serviceID, expiry: expiry}
}

// Generate mints a signed token for g's service identity.
func (g *ServiceTokenGenerator) Generate() (string, error) {
	now := time.Now()
	claims := &ServiceClaims{
		ServiceID: g.serviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.expiry)),
			Issuer:    "h51",
			Subject:   g.serviceID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
}

// ServiceAuthConfig configures ServiceAuthMiddleware.
type ServiceAuthConfig struct {
	Secret          []byte
	Logger          *logging.Logger
	AllowedServices []string
	SkipPaths       []string
}

// ServiceAuthMiddleware authenticates the admin/control-plane surface
// (/admin/*, worker population control) via a shared-secret HS256 token,
// matching SPEC_FULL §11's golang-jwt/jwt/v5 wiring.
type ServiceAuthMiddleware struct {
	secret    []byte
	logger    *logging.Logger
	allowed   map[string]bool
	skipPaths map[string]bool
}

// NewServiceAuthMiddleware constructs a ServiceAuthMiddleware from cfg.
func NewServiceAuthMiddleware(cfg ServiceAuthConfig) *ServiceAuthMiddleware {
	allowed := make(map[string]bool, len(cfg.AllowedServices))
	for _, svc := range cfg.AllowedServices {
		allowed[svc] = true
	}
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skip[path] = true
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewFromEnv("serviceauth")
	}
	return &ServiceAuthMiddleware{secret: cfg.Secret, logger: logger, allowed: allowed, skipPaths: skip}
}

// Handler wraps next, requiring a valid ServiceTokenHeader on every request
// whose path isn't in SkipPaths.
func (m *ServiceAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimSpace(r.Header.Get(ServiceTokenHeader))
		if token == "" {
			m.respondError(w, r, errors.Unauthorized("missing service token"))
			return
		}

		claims, err := m.validate(token)
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Warn("service token validation failed")
			m.respondError(w, r, errors.Unauthorized("invalid service token"))
			return
		}

		if len(m.allowed) > 0 && !m.allowed[claims.ServiceID] {
			m.respondError(w, r, errors.Forbidden("service not authorized"))
			return
		}

		ctx := WithServiceID(r.Context(), claims.ServiceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *ServiceAuthMiddleware) validate(tokenString string) (*ServiceClaims, error) {
	claims := &ServiceClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.ServiceID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (m *ServiceAuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, apiErr *errors.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.HTTPStatus)
	_, _ = w.Write([]byte(`{"error_type":"` + string(apiErr.Type) + `","hint":"` + apiErr.Hint + `"}`))
}
