package password

// Hasher produces argon2id hashes and verifies both argon2id and bcrypt.
type Hasher struct {
	argon  *Argon2
	bcrypt *Bcrypt
}

// NewHasher builds a Hasher from argon2id parameters. Bcrypt verification is
// always available.
func NewHasher(cfg Config) (*Hasher, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	b, err := NewBcrypt(DefaultBcryptCost)
	if err != nil {
		return nil, err
	}
	return &Hasher{argon: a, bcrypt: b}, nil
}

// Hash always produces argon2id.
func (h *Hasher) Hash(password string) (string, error) {
	return h.argon.Hash(password)
}

// Verify dispatches on the stored hash format.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	switch {
	case isArgon2Hash(encodedHash):
		return h.argon.Verify(password, encodedHash)
	case isBcryptHash(encodedHash):
		return h.bcrypt.Verify(password, encodedHash)
	default:
		return false, ErrUnsupportedHash
	}
}

// NeedsRehash is true for every bcrypt hash and for argon2id hashes made with
// weaker parameters.
func (h *Hasher) NeedsRehash(encodedHash string) bool {
	switch {
	case isBcryptHash(encodedHash):
		return true
	case isArgon2Hash(encodedHash):
		upgrade, err := h.argon.NeedsUpgrade(encodedHash)
		return err == nil && upgrade
	default:
		return false
	}
}
