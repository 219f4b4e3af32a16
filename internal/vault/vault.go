// Package vault mints and verifies market-scoped escrow capabilities. A
// capability is an HMAC-SHA256 token bound to one market id; holding it
// authorizes debits from that market's escrow account and nothing else. The
// token is derived once at market creation and never stored, so escrow
// authority flows from the market's identity rather than from any user.
package vault

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"

	"parimarket/internal/domain"
)

// minSecretLen guards against trivially guessable vault secrets.
const minSecretLen = 16

// Vault derives escrow capability tokens from a single service secret.
type Vault struct {
	secret []byte
}

// New creates a Vault from the given secret.
func New(secret []byte) (*Vault, error) {
	if len(secret) < minSecretLen {
		return nil, errors.New("vault: secret must be at least 16 bytes")
	}
	v := &Vault{secret: make([]byte, len(secret))}
	copy(v.secret, secret)
	return v, nil
}

// Derive returns the capability token for the given market's escrow.
// Derivation is deterministic: the same vault always mints the same token
// for a market.
func (v *Vault) Derive(marketID uint64) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte("escrow:" + strconv.FormatUint(marketID, 10)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Capability returns a TransferAuthority carrying the market's escrow
// capability, for escrow-out transfers.
func (v *Vault) Capability(marketID uint64) domain.TransferAuthority {
	return domain.TransferAuthority{Capability: v.Derive(marketID)}
}

// Verify reports whether token is the capability for the given market. The
// comparison is constant time.
func (v *Vault) Verify(marketID uint64, token string) bool {
	want, err := base64.StdEncoding.DecodeString(v.Derive(marketID))
	if err != nil {
		return false
	}
	got, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return false
	}
	return hmac.Equal(want, got)
}

// Compile-time interface check.
var _ domain.CapabilityVerifier = (*Vault)(nil)
