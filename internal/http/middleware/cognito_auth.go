package middleware

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const cognitoClaimsKey contextKey = "cognitoClaims"

// CognitoConfig holds the user pool used to validate bearer tokens.
type CognitoConfig struct {
	Region     string
	UserPoolID string
	ClientID   string
}

func (c CognitoConfig) issuer() string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.Region, c.UserPoolID)
}

// CognitoClaims are the claims the API reads from Cognito ID and access
// tokens.
type CognitoClaims struct {
	jwt.RegisteredClaims
	Email           string   `json:"email"`
	GivenName       string   `json:"given_name"`
	FamilyName      string   `json:"family_name"`
	CognitoGroups   []string `json:"cognito:groups"`
	TokenUse        string   `json:"token_use"`
	ClientID        string   `json:"client_id"`
	Username        string   `json:"username"`
	CognitoUsername string   `json:"cognito:username"`
}

// User returns the stable name of the caller.
func (c *CognitoClaims) User() string {
	switch {
	case c.CognitoUsername != "":
		return c.CognitoUsername
	case c.Username != "":
		return c.Username
	default:
		return c.Subject
	}
}

// InGroup reports whether the caller belongs to one of groups.
func (c *CognitoClaims) InGroup(groups ...string) bool {
	for _, g := range groups {
		if slices.Contains(c.CognitoGroups, g) {
			return true
		}
	}
	return false
}

// keySet caches the pool's signing keys for an hour.
type keySet struct {
	url     string
	client  *http.Client
	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	expires time.Time
}

func newKeySet(url string) *keySet {
	return &keySet{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

func (k *keySet) key(kid string) (*rsa.PublicKey, error) {
	k.mu.RLock()
	if time.Now().Before(k.expires) {
		if key, ok := k.keys[kid]; ok {
			k.mu.RUnlock()
			return key, nil
		}
	}
	k.mu.RUnlock()

	keys, err := fetchJWKS(k.client, k.url)
	if err != nil {
		return nil, err
	}
	k.mu.Lock()
	k.keys = keys
	k.expires = time.Now().Add(time.Hour)
	k.mu.Unlock()

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("key %s not found in JWKS", kid)
	}
	return key, nil
}

// CognitoJWT validates bearer tokens issued by the Cognito user pool and
// stores the claims in the request context.
func CognitoJWT(cfg CognitoConfig) func(http.Handler) http.Handler {
	if cfg.Region == "" || cfg.UserPoolID == "" {
		return func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(w, http.StatusUnauthorized, "cognito auth not configured")
			})
		}
	}
	issuer := cfg.issuer()
	keys := newKeySet(issuer + "/.well-known/jwks.json")
	return cognitoJWT(cfg, issuer, func(t *jwt.Token) (any, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("missing key id in token")
		}
		return keys.key(kid)
	})
}

func cognitoJWT(cfg CognitoConfig, issuer string, keyFunc jwt.Keyfunc) func(http.Handler) http.Handler {
	parser := jwt.NewParser(
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{"RS256"}),
	)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			claims := &CognitoClaims{}
			token, err := parser.ParseWithClaims(raw, claims, keyFunc)
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			if cfg.ClientID != "" {
				switch claims.TokenUse {
				case "id":
					aud, _ := claims.GetAudience()
					if !slices.Contains(aud, cfg.ClientID) {
						writeError(w, http.StatusUnauthorized, "invalid audience")
						return
					}
				case "access":
					if claims.ClientID != cfg.ClientID {
						writeError(w, http.StatusUnauthorized, "invalid client_id")
						return
					}
				}
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// bearerToken reads the Authorization header. Browsers cannot set headers on
// websocket handshakes, so upgrades may pass the token as ?access_token=.
func bearerToken(r *http.Request) (string, bool) {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer "), true
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		if t := r.URL.Query().Get("access_token"); t != "" {
			return t, true
		}
	}
	return "", false
}

// DevAuth stands in for CognitoJWT when auth is disabled. Every request runs
// as an administrator named by the X-Dev-User header, "dev" by default.
func DevAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get("X-Dev-User")
		if user == "" {
			user = "dev"
		}
		claims := &CognitoClaims{CognitoUsername: user, CognitoGroups: []string{"admins", "osteopaths"}}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireGroup rejects callers outside every listed group with 403.
func RequireGroup(groups ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := CognitoClaimsFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}
			if !claims.InGroup(groups...) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithClaims(ctx context.Context, claims *CognitoClaims) context.Context {
	return context.WithValue(ctx, cognitoClaimsKey, claims)
}

func CognitoClaimsFromContext(ctx context.Context) (*CognitoClaims, bool) {
	claims, ok := ctx.Value(cognitoClaimsKey).(*CognitoClaims)
	return claims, ok
}

// UserFromContext returns the caller's name or "" when unauthenticated.
func UserFromContext(ctx context.Context) string {
	if claims, ok := CognitoClaimsFromContext(ctx); ok {
		return claims.User()
	}
	return ""
}

type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

type jwkKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func fetchJWKS(client *http.Client, url string) (map[string]*rsa.PublicKey, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS request failed with status %d", resp.StatusCode)
	}
	var jwks jwksResponse
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, key := range jwks.Keys {
		if key.Kty != "RSA" {
			continue
		}
		pubKey, err := parseRSAPublicKey(key.N, key.E)
		if err != nil {
			continue
		}
		keys[key.Kid] = pubKey
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no valid RSA keys found in JWKS")
	}
	return keys, nil
}

func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
