package api

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"expert-assistant/internal/config"
	"expert-assistant/internal/domain"
	"expert-assistant/internal/infra/logging"
)

// TokenHeader carries a freshly minted client token for non-browser callers.
const TokenHeader = "X-Client-Token"

// APIKeyHeader carries a per-request model provider key.
const APIKeyHeader = "X-Api-Key"

type AuthConfig struct {
	HMACSecret   []byte
	CookieName   string
	SecureCookie bool
	TTL          time.Duration
}

// ClientAuth issues and verifies the anonymous client identity. A client is
// whoever holds a token; its subject is the client id that owns sessions and
// the stored API key.
type ClientAuth struct{ cfg AuthConfig }

// NewClientAuth uses a random secret when none is configured (dev mode), so
// tokens only survive until restart.
func NewClientAuth(cfg config.SecurityConfig) *ClientAuth {
	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
	}
	return &ClientAuth{cfg: AuthConfig{
		HMACSecret:   secret,
		CookieName:   cfg.CookieName,
		SecureCookie: cfg.SecureCookie,
		TTL:          cfg.TokenTTL,
	}}
}

type ClientClaims struct {
	jwt.RegisteredClaims
}

func (a *ClientAuth) Mint(w http.ResponseWriter, clientID string) (string, error) {
	now := time.Now()
	claims := ClientClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.TTL)),
			Subject:   clientID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.cfg.HMACSecret)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.CookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(a.cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   a.cfg.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	})
	w.Header().Set(TokenHeader, signed)
	return signed, nil
}

func (a *ClientAuth) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cfg.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

var errMissingToken = errors.New("missing token")

func (a *ClientAuth) ParseFromRequest(r *http.Request) (*ClientClaims, error) {
	// Authorization: Bearer <jwt>
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
			return a.parse(strings.TrimSpace(hdr[7:]))
		}
	}
	if c, err := r.Cookie(a.cfg.CookieName); err == nil {
		return a.parse(c.Value)
	}
	return nil, errMissingToken
}

func (a *ClientAuth) parse(tok string) (*ClientClaims, error) {
	claims := &ClientClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.cfg.HMACSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

type clientKey struct{}

// ClientID returns the identified client, or "" outside Identify.
func ClientID(ctx context.Context) string {
	id, _ := ctx.Value(clientKey{}).(string)
	return id
}

// Identify resolves the client from its token, minting a new identity for
// callers that have none or present an invalid one.
func (a *ClientAuth) Identify(logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var clientID string
			claims, err := a.ParseFromRequest(r)
			switch {
			case err == nil:
				clientID = claims.Subject
			default:
				clientID = domain.NewULID()
				if _, mintErr := a.Mint(w, clientID); mintErr != nil {
					l := logging.With(r.Context(), logger)
					l.Error().Err(mintErr).Msg("mint client token")
					writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorView{Kind: "internal", Message: "could not issue client token"}})
					return
				}
				if !errors.Is(err, errMissingToken) {
					l := logging.With(r.Context(), logger)
					l.Debug().Err(err).Msg("replaced invalid client token")
				}
			}
			ctx := context.WithValue(r.Context(), clientKey{}, clientID)
			ctx = logging.WithClientID(ctx, clientID)
			noteContext(w, ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
