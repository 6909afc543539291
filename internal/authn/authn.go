// Package authn implements the Credential Verifier: it validates
// (username, password) pairs against an opaque credential store and
// issues short-lived signed bearer tokens, and verifies those tokens on
// each subsequent request.
package authn

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrUnauthorized is returned for every authentication failure. Callers
// must never branch on the underlying cause — unknown user and wrong
// password are indistinguishable by design.
var ErrUnauthorized = errors.New("invalid credentials")

const clockSkew = 30 * time.Second

type credential struct {
	principal    string
	passwordHash []byte
}

// Verifier is the Credential Verifier. It owns a static credential store
// (username -> salted password hash) and the JWT signing key.
type Verifier struct {
	secret    []byte
	algorithm string
	expiry    time.Duration
	creds     map[string]credential
}

type Options struct {
	SecretKey         string
	Algorithm         string
	ExpirationMinutes int
}

// New constructs a Verifier from an explicit credential table, used by
// tests and by NewFromEnv.
func New(opts Options, users map[string]string) (*Verifier, error) {
	if strings.TrimSpace(opts.SecretKey) == "" {
		return nil, errors.New("authn: secret key must not be empty")
	}
	v := &Verifier{
		secret:    []byte(opts.SecretKey),
		algorithm: opts.Algorithm,
		expiry:    time.Duration(opts.ExpirationMinutes) * time.Minute,
		creds:     make(map[string]credential, len(users)),
	}
	if v.algorithm == "" {
		v.algorithm = "HS256"
	}
	for username, password := range users {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		v.creds[username] = credential{principal: username, passwordHash: hash}
	}
	return v, nil
}

// NewFromEnv builds a Verifier using BATCH_GATEWAY_USERS
// ("user1:pass1,user2:pass2") as the opaque credential store, per spec's
// explicit exclusion of persistent user storage from the core.
func NewFromEnv(secretKey, algorithm string, expirationMinutes int) (*Verifier, error) {
	users := map[string]string{}
	raw := strings.TrimSpace(os.Getenv("BATCH_GATEWAY_USERS"))
	if raw == "" {
		users["demo"] = "demo"
	} else {
		for _, entry := range strings.Split(raw, ",") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			parts := strings.SplitN(entry, ":", 2)
			if len(parts) != 2 {
				continue
			}
			users[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return New(Options{SecretKey: secretKey, Algorithm: algorithm, ExpirationMinutes: expirationMinutes}, users)
}

type claims struct {
	jwt.RegisteredClaims
}

// Issue verifies (username, password) against the credential store with a
// constant-time password comparison and, on success, emits a signed
// bearer token binding the principal and an absolute expiry.
func (v *Verifier) Issue(username, password string) (token string, expiresAt time.Time, err error) {
	cred, ok := v.creds[username]
	// Always run bcrypt.CompareHashAndPassword, even for an unknown user,
	// against a fixed dummy hash, so unknown-user and wrong-password take
	// the same code path and the same rough time.
	hash := cred.passwordHash
	if !ok {
		hash = dummyHash
	}
	cmpErr := bcrypt.CompareHashAndPassword(hash, []byte(password))
	if !ok || cmpErr != nil {
		return "", time.Time{}, ErrUnauthorized
	}
	now := time.Now().UTC()
	expiresAt = now.Add(v.expiry)
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   cred.principal,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	tok := jwt.NewWithClaims(signingMethod(v.algorithm), c)
	signed, err := tok.SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify validates a bearer token's signature, structural integrity, and
// expiry (tolerating clock skew of up to 30s), returning the bound
// principal on success.
func (v *Verifier) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthorized
	}
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != v.algorithm {
			return nil, ErrUnauthorized
		}
		return v.secret, nil
	}, jwt.WithLeeway(clockSkew))
	if err != nil || !parsed.Valid {
		return "", ErrUnauthorized
	}
	if c.Subject == "" {
		return "", ErrUnauthorized
	}
	return c.Subject, nil
}

func signingMethod(algorithm string) jwt.SigningMethod {
	switch algorithm {
	case "HS384":
		return jwt.SigningMethodHS384
	case "HS512":
		return jwt.SigningMethodHS512
	default:
		return jwt.SigningMethodHS256
	}
}

var dummyHash = mustHash("dummy-password-for-timing-parity")

func mustHash(pw string) []byte {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}
