package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_storefront/internal/domain"
	"github.com/fjod/go_storefront/internal/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	CustomerCookie  = "storefront_customer"
	HeaderUserID    = "X-User-Id"
	HeaderUserRoles = "X-User-Roles"

	anonymousPrefix = "anon-"
	cookieMaxAge    = 30 * 24 * time.Hour
)

type principalKey struct{}

// CartAdopter moves an anonymous cart into an account cart.
type CartAdopter interface {
	AdoptCart(ctx context.Context, from, to domain.CustomerID) error
}

// PrincipalFrom returns the caller resolved by IdentityMiddleware.
func PrincipalFrom(ctx context.Context) domain.Principal {
	p, _ := ctx.Value(principalKey{}).(domain.Principal)
	return p
}

func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// IdentityMiddleware resolves the caller. The gateway in front of the
// storefront authenticates users and passes the account id in X-User-Id;
// everyone else gets an anonymous id kept in a cookie. When a shopper with an
// anonymous cart signs in, that cart is folded into the account cart.
func IdentityMiddleware(adopter CartAdopter, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			anon := anonymousID(r)

			var p domain.Principal
			if userID := strings.TrimSpace(r.Header.Get(HeaderUserID)); userID != "" {
				p = domain.Principal{
					Customer:      domain.CustomerID(userID),
					Authenticated: true,
					Roles:         parseRoles(r.Header.Get(HeaderUserRoles)),
				}
				if anon != "" {
					if err := adopter.AdoptCart(r.Context(), anon, p.Customer); err != nil {
						// the cookie stays so the next request tries again
						logger.WithTrace(r.Context(), log).Warn("failed to adopt anonymous cart",
							zap.String("from", string(anon)), zap.String("to", userID), zap.Error(err))
					} else {
						clearCustomerCookie(w)
					}
				}
			} else {
				if anon == "" {
					anon = domain.CustomerID(anonymousPrefix + uuid.NewString())
					setCustomerCookie(w, anon)
				}
				p = domain.Principal{Customer: anon}
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// MaxBodySize caps request bodies at n bytes.
func MaxBodySize(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func anonymousID(r *http.Request) domain.CustomerID {
	c, err := r.Cookie(CustomerCookie)
	if err != nil {
		return ""
	}
	raw, ok := strings.CutPrefix(c.Value, anonymousPrefix)
	if !ok {
		return ""
	}
	if _, err := uuid.Parse(raw); err != nil {
		return ""
	}
	return domain.CustomerID(c.Value)
}

func parseRoles(header string) []string {
	var roles []string
	for _, role := range strings.Split(header, ",") {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}

func setCustomerCookie(w http.ResponseWriter, id domain.CustomerID) {
	http.SetCookie(w, &http.Cookie{
		Name:     CustomerCookie,
		Value:    string(id),
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCustomerCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CustomerCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
