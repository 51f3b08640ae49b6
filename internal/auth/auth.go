package auth

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"slices"
	"strings"

	"github.com/DoyleJ11/starrail-draft-backend/pkg/engine"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

var ErrMalformedToken = errors.New("malformed token")

// maxRevoked bounds how many rotated-out digests are remembered.
const maxRevoked = 16

// Credentials keeps only digests; tokens themselves are handed out once.
type Credentials struct {
	Owner string `json:"owner"`
	Blue  string `json:"blue"`
	Red   string `json:"red"`

	Revoked []string `json:"revoked,omitempty"`
}

type Tokens struct {
	Owner string `json:"ownerToken"`
	Blue  string `json:"blueToken"`
	Red   string `json:"redToken"`
}

// Issue creates owner and side tokens for a session key.
func Issue(key string) (Credentials, Tokens, error) {
	var (
		creds Credentials
		toks  Tokens
	)
	for _, slot := range []struct {
		token  *string
		digest *string
	}{
		{&toks.Owner, &creds.Owner},
		{&toks.Blue, &creds.Blue},
		{&toks.Red, &creds.Red},
	} {
		tok, err := newToken(key)
		if err != nil {
			return Credentials{}, Tokens{}, err
		}
		*slot.token = tok
		*slot.digest = Digest(tok)
	}
	return creds, toks, nil
}

// Rotate replaces one side's token; the previous one stops resolving.
func (c Credentials) Rotate(key string, side engine.Side) (Credentials, string, error) {
	tok, err := newToken(key)
	if err != nil {
		return c, "", err
	}
	old := &c.Blue
	if side == engine.SideRed {
		old = &c.Red
	}
	c.Revoked = append(slices.Clone(c.Revoked), *old)
	if len(c.Revoked) > maxRevoked {
		c.Revoked = c.Revoked[len(c.Revoked)-maxRevoked:]
	}
	*old = Digest(tok)
	return c, tok, nil
}

// Resolve maps a token to the role it was issued for.
func (c Credentials) Resolve(token string) (engine.Role, bool) {
	d := Digest(token)
	switch {
	case equal(d, c.Owner):
		return engine.RoleOwner, true
	case equal(d, c.Blue):
		return engine.RoleBlue, true
	case equal(d, c.Red):
		return engine.RoleRed, true
	default:
		return "", false
	}
}

// IsRevoked reports whether token was valid before a rotation.
func (c Credentials) IsRevoked(token string) bool {
	d := Digest(token)
	return slices.ContainsFunc(c.Revoked, func(r string) bool { return equal(d, r) })
}

// KeyOf extracts the session key a token was issued under.
func KeyOf(token string) (string, error) {
	key, secret, ok := strings.Cut(token, ".")
	if !ok || key == "" || secret == "" {
		return "", ErrMalformedToken
	}
	return key, nil
}

func Digest(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newToken(key string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return key + "." + strings.ReplaceAll(id.String(), "-", ""), nil
}

func equal(a, b string) bool {
	return b != "" && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
