package goIdentity

import (
	"errors"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/password"
)

// Codec issues and checks every credential the engine handles: opaque
// refresh and one-time tokens, password hashes and signed access tokens.
// It is stateless apart from its keys and safe for concurrent use.
type Codec struct {
	hasher *password.Hasher
	jwt    *jwt.Manager

	// dummyHash is verified against when the account does not exist so that
	// unknown-email logins cost the same as wrong-password logins.
	dummyHash string
}

// NewCodec builds a Codec from the JWT and password sections of cfg. now
// may be nil.
func NewCodec(cfg Config, now func() time.Time) (*Codec, error) {
	hasher, err := password.NewHasher(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: maxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}

	signKey := cloneBytes(cfg.JWT.PrivateKey)
	if jwt.SigningMethod(cfg.JWT.SigningMethod) == jwt.MethodHS256 {
		signKey = []byte(cfg.JWT.Secret)
	}
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    signKey,
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	dummy, err := internal.NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	dummyHash, err := hasher.Hash(dummy)
	if err != nil {
		return nil, err
	}

	return &Codec{hasher: hasher, jwt: jm, dummyHash: dummyHash}, nil
}

// NewOpaqueToken returns a fresh 43-character base64url token.
func (c *Codec) NewOpaqueToken() (string, error) {
	return internal.NewOpaqueToken()
}

// HashToken is the digest under which an opaque token is stored.
func (c *Codec) HashToken(token string) string {
	return internal.HashToken(token)
}

func (c *Codec) HashPassword(plaintext string) (string, error) {
	return c.hasher.Hash(plaintext)
}

// VerifyPassword compares plaintext against an argon2id or bcrypt hash.
// A hash in an unknown format is an error, not a mismatch.
func (c *Codec) VerifyPassword(plaintext, hash string) (bool, error) {
	return c.hasher.Verify(plaintext, hash)
}

func (c *Codec) NeedsRehash(hash string) bool {
	return c.hasher.NeedsRehash(hash)
}

// burnVerify runs a verification whose result is discarded.
func (c *Codec) burnVerify(plaintext string) {
	_, _ = c.hasher.Verify(plaintext, c.dummyHash)
}

// SignAccessToken issues an access token for u.
func (c *Codec) SignAccessToken(u User) (string, error) {
	return c.jwt.CreateAccess(u.ID, u.Email, u.EmailVerified)
}

// VerifyAccessToken checks signature, algorithm, issuer and expiry. Every
// failure is ErrTokenInvalid.
func (c *Codec) VerifyAccessToken(token string) (*AccessClaims, error) {
	claims, err := c.jwt.ParseAccess(token)
	if err != nil {
		if errors.Is(err, jwt.ErrInvalidToken) {
			return nil, tokenInvalid()
		}
		return nil, &Error{Kind: KindUnauthorized, Message: "invalid token", Err: errors.Join(ErrTokenInvalid, err)}
	}

	out := &AccessClaims{
		UserID:        claims.UserID(),
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// AccessTTL is the lifetime of issued access tokens.
func (c *Codec) AccessTTL() time.Duration {
	return c.jwt.TTL()
}
