package usertoken

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"personapost/pkg/domain"
)

// jwksFixture publishes whichever signing keys are currently active.
type jwksFixture struct {
	mu      sync.Mutex
	keys    map[string]*rsa.PrivateKey
	active  []string
	fetches int
	srv     *httptest.Server
}

func newJWKSFixture(t *testing.T, kids ...string) *jwksFixture {
	t.Helper()
	f := &jwksFixture{keys: make(map[string]*rsa.PrivateKey)}
	for _, kid := range kids {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		f.keys[kid] = key
	}
	f.active = kids[:1]
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.fetches++
		set := make([]map[string]string, 0, len(f.active))
		for _, kid := range f.active {
			pub := f.keys[kid].PublicKey
			set = append(set, map[string]string{
				"kty": "RSA",
				"kid": kid,
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			})
		}
		w.Header().Set("Cache-Control", "max-age=300")
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": set})
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *jwksFixture) rotate(kid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = []string{kid}
}

func (f *jwksFixture) sign(t *testing.T, kid string, claims Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(f.keys[kid])
	require.NoError(t, err)
	return signed
}

func claimsFor(subject, role string, issuedAt time.Time) Claims {
	return Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "personapost-test",
			Audience:  jwt.ClaimStrings{"scheduler"},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(10 * time.Minute)),
		},
	}
}

func TestNewVerifierRequiresKeySource(t *testing.T) {
	_, err := NewVerifier(Config{})
	assert.Error(t, err)
}

func TestNewVerifierFailsWhenJWKSUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewVerifier(Config{JWKSURL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestJWKSRefetchesAfterKeyRotation(t *testing.T) {
	f := newJWKSFixture(t, "2024-a", "2024-b")
	v, err := NewVerifier(Config{JWKSURL: f.srv.URL, Issuer: "personapost-test", Audience: "scheduler"})
	require.NoError(t, err)

	id, err := v.Verify(f.sign(t, "2024-a", claimsFor("creator-1", "user", time.Now())))
	require.NoError(t, err)
	assert.Equal(t, domain.Identity{UserID: "creator-1"}, id)
	assert.Equal(t, 1, f.fetches)

	f.rotate("2024-b")
	id, err = v.Verify(f.sign(t, "2024-b", claimsFor("ops-1", "ADMIN", time.Now())))
	require.NoError(t, err)
	assert.Equal(t, domain.Identity{UserID: "ops-1", IsAdmin: true}, id)
	assert.Equal(t, 2, f.fetches)

	_, err = v.Verify(f.sign(t, "2024-a", claimsFor("creator-1", "user", time.Now())))
	assert.Error(t, err, "retired key must no longer verify")
}

func TestJWKSRejectsBadClaims(t *testing.T) {
	f := newJWKSFixture(t, "k1")
	v, err := NewVerifier(Config{JWKSURL: f.srv.URL, Issuer: "personapost-test", Audience: "scheduler", Leeway: 5 * time.Second})
	require.NoError(t, err)

	future := f.sign(t, "k1", claimsFor("creator-1", "user", time.Now().Add(2*time.Minute)))
	_, err = v.Verify(future)
	assert.Error(t, err, "issued in the future")

	wrongAud := claimsFor("creator-1", "user", time.Now())
	wrongAud.Audience = jwt.ClaimStrings{"billing"}
	_, err = v.Verify(f.sign(t, "k1", wrongAud))
	assert.Error(t, err, "audience mismatch")

	_, err = v.Verify(f.sign(t, "k1", claimsFor("  ", "user", time.Now())))
	assert.Error(t, err, "blank subject")
}

func TestSharedSecretRoundTrip(t *testing.T) {
	signer, err := NewSigner("dev-secret", "", "")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	v, err := NewVerifier(Config{Secret: "dev-secret"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token, err := signer.Sign("user-1", domain.RoleAdmin, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	id, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.UserID != "user-1" || !id.IsAdmin {
		t.Fatalf("unexpected identity: %+v", id)
	}

	userToken, _ := signer.Sign("user-2", domain.RoleUser, time.Minute)
	if id, err := v.Verify(userToken); err != nil || id.IsAdmin {
		t.Fatalf("expected non-admin identity, got %+v err=%v", id, err)
	}
}

func TestSharedSecretRejectsWrongKeyAndAlgorithm(t *testing.T) {
	v, _ := NewVerifier(Config{Secret: "dev-secret"})
	other, _ := NewSigner("other-secret", "", "")
	token, _ := other.Sign("user-1", domain.RoleUser, time.Minute)
	if _, err := v.Verify(token); err == nil {
		t.Fatalf("expected token signed with another secret to fail")
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	rs := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    DefaultIssuer,
		Audience:  jwt.ClaimStrings{DefaultAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}})
	signed, _ := rs.SignedString(key)
	if _, err := v.Verify(signed); err == nil {
		t.Fatalf("expected RS256 token to be rejected in shared-secret mode")
	}
}

func TestSharedSecretRejectsExpired(t *testing.T) {
	v, _ := NewVerifier(Config{Secret: "dev-secret", Leeway: time.Second})
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    DefaultIssuer,
		Audience:  jwt.ClaimStrings{DefaultAudience},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	signed, _ := tok.SignedString([]byte("dev-secret"))
	if _, err := v.Verify(signed); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}
