/*
auth.go - Staff authentication

PURPOSE:
  Scan, redemption and directory endpoints are staff only. Staff clients
  send a bearer JWT signed with the shared HS256 secret:

    Authorization: Bearer <token>

CLAIMS:
  sub:   Staff identity, recorded as ActorID on ledger events
  role:  Must be "superuser"
  iss:   Must match the configured issuer
  exp:   Required

FAILURES (checked before any ledger read):
  No header / bad token  -> 401 unauthenticated
  Valid token, wrong role -> 403 permission-denied

SEE ALSO:
  - server.go: Which routes require staff
  - loyalty/service.go: WithActor
*/
package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/stampcard/loyalty"
)

// Claims are the JWT claims carried by staff tokens.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies staff tokens.
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator creates an HS256 authenticator.
func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// Issue signs a token for subject with the given role. Used by tests, the
// demo scenarios and the token helper in cmd/server.
func (a *Authenticator) Issue(subject string, role loyalty.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns its claims.
func (a *Authenticator) Parse(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", loyalty.ErrUnauthenticated, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: invalid token", loyalty.ErrUnauthenticated)
	}
	return claims, nil
}

// RequireStaff rejects requests without a valid superuser token and records
// the staff identity on the request context.
func (a *Authenticator) RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.authenticate(r)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if claims.Role != string(loyalty.RoleSuperuser) {
			writeServiceError(w, r, fmt.Errorf("%w: staff role required", loyalty.ErrForbidden))
			return
		}
		ctx := loyalty.WithActor(r.Context(), claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) authenticate(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, fmt.Errorf("%w: missing Authorization header", loyalty.ErrUnauthenticated)
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: expected a Bearer token", loyalty.ErrUnauthenticated)
	}
	return a.Parse(strings.TrimSpace(token))
}
