package usertoken

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"personapost/pkg/domain"
)

const (
	DefaultIssuer   = "personapost-auth"
	DefaultAudience = "personapost-api"
	defaultLeeway   = 30 * time.Second
)

// Claims carries the caller identity issued by the auth collaborator.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Config configures access-token verification. Secret selects HS256 with a
// shared key; otherwise JWKSURL is required and RS256 keys are fetched from it.
type Config struct {
	Secret     string
	JWKSURL    string
	Issuer     string
	Audience   string
	Leeway     time.Duration
	HTTPClient *http.Client
}

// Verifier validates bearer tokens and resolves them to an Identity.
type Verifier struct {
	parser *jwt.Parser
	secret []byte
	jwks   *keySet
}

// NewVerifier creates a token verifier. In JWKS mode the key set is fetched
// once up front so misconfiguration fails at startup.
func NewVerifier(cfg Config) (*Verifier, error) {
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	v := &Verifier{}
	alg := jwt.SigningMethodHS256.Alg()

	if secret := strings.TrimSpace(cfg.Secret); secret != "" {
		v.secret = []byte(secret)
	} else {
		url := strings.TrimSpace(cfg.JWKSURL)
		if url == "" {
			return nil, errors.New("token verifier requires secret or jwksURL")
		}
		v.jwks = newKeySet(url, cfg.HTTPClient)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := v.jwks.refresh(ctx); err != nil {
			return nil, err
		}
		alg = jwt.SigningMethodRS256.Alg()
	}

	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{alg}),
		jwt.WithIssuer(orDefault(cfg.Issuer, DefaultIssuer)),
		jwt.WithAudience(orDefault(cfg.Audience, DefaultAudience)),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
	)
	return v, nil
}

// Verify validates the token and returns the caller identity. An unknown kid
// or an expired key cache triggers one JWKS refetch before giving up.
func (v *Verifier) Verify(token string) (domain.Identity, error) {
	claims, err := v.parse(token)
	if err != nil && v.jwks != nil && (errors.Is(err, errUnknownKey) || v.jwks.stale(time.Now())) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if rerr := v.jwks.refresh(ctx); rerr != nil {
			return domain.Identity{}, rerr
		}
		claims, err = v.parse(token)
	}
	if err != nil {
		return domain.Identity{}, err
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return domain.Identity{}, errors.New("token subject missing")
	}
	return domain.Identity{
		UserID:  subject,
		IsAdmin: strings.EqualFold(strings.TrimSpace(claims.Role), string(domain.RoleAdmin)),
	}, nil
}

func (v *Verifier) parse(token string) (Claims, error) {
	var claims Claims
	parsed, err := v.parser.ParseWithClaims(token, &claims, v.key)
	if err != nil {
		return claims, err
	}
	if !parsed.Valid {
		return claims, errors.New("invalid token")
	}
	return claims, nil
}

func (v *Verifier) key(t *jwt.Token) (any, error) {
	if v.jwks == nil {
		return v.secret, nil
	}
	kid, _ := t.Header["kid"].(string)
	return v.jwks.lookup(kid)
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
