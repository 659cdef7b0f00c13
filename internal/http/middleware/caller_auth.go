package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/rams-care-platform/internal/caller"
	"github.com/wolfman30/rams-care-platform/internal/failure"
	"github.com/wolfman30/rams-care-platform/internal/http/respond"
)

const tokenIssuer = "rams-care"

var (
	errAuthDisabled = failure.New(failure.KindUnauthorized, "auth_disabled", "Sign-in is not configured.")
	errMissingToken = failure.New(failure.KindUnauthorized, "missing_token", "Please sign in to continue.")
	errBadToken     = failure.New(failure.KindUnauthorized, "invalid_token", "Your session has expired. Please sign in again.")
)

// CallerJWT issues and checks HMAC-signed caller tokens. The subject claim is
// the account id.
type CallerJWT struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCallerJWT builds a token authority. An empty secret disables it: every
// authenticated route then answers 401.
func NewCallerJWT(secret string, ttl time.Duration) *CallerJWT {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CallerJWT{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Enabled reports whether a signing secret is configured.
func (a *CallerJWT) Enabled() bool {
	return a != nil && len(a.secret) > 0
}

// IssueToken signs a token for accountID.
func (a *CallerJWT) IssueToken(accountID string) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("middleware: caller token secret not configured")
	}
	if accountID == "" {
		return "", errors.New("middleware: account id required")
	}
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Authenticate rejects requests without a valid bearer token and stores the
// token subject on the request context.
func (a *CallerJWT) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(a.secret) == 0 {
			respond.Error(w, r, nil, errAuthDisabled)
			return
		}
		auth := r.Header.Get("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			respond.Error(w, r, nil, errMissingToken)
			return
		}
		tokenString := strings.TrimPrefix(auth, "Bearer ")
		claims := jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return a.secret, nil
		}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(a.now))
		if err != nil || !token.Valid || claims.Subject == "" {
			respond.Error(w, r, nil, errBadToken)
			return
		}
		ctx := caller.WithAccountID(r.Context(), claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
