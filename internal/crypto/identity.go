package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"parimarket/internal/domain"
)

// signedMessagePrefix is the standard personal-message prefix. Signing a
// prefixed hash keeps request signatures from doubling as transaction
// signatures elsewhere.
const signedMessagePrefix = "\x19Ethereum Signed Message:\n"

// personalHash hashes a message the way personal_sign does.
func personalHash(message []byte) []byte {
	prefixed := append([]byte(signedMessagePrefix+strconv.Itoa(len(message))), message...)
	return ethcrypto.Keccak256(prefixed)
}

// RecoverPrincipal recovers the signer's address from a 65-byte hex-encoded
// personal-message signature over message. The returned principal is the
// lowercase 0x-prefixed address, the opaque identity the core compares.
func RecoverPrincipal(message []byte, sigHex string) (domain.Principal, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("crypto: decode signature: %w", err)
	}
	if len(sig) != 65 {
		return "", fmt.Errorf("crypto: signature must be 65 bytes, got %d", len(sig))
	}

	// Wallets emit V as 27/28; SigToPub wants 0/1.
	if sig[64] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(personalHash(message), sig)
	if err != nil {
		return "", fmt.Errorf("crypto: recover public key: %w", err)
	}

	addr := ethcrypto.PubkeyToAddress(*pub)
	return domain.Principal(strings.ToLower(addr.Hex())), nil
}

// SignMessage produces a personal-message signature over message with V in
// 27/28 form, matching what RecoverPrincipal expects. Used by the demo mode
// and tests.
func SignMessage(key *ecdsa.PrivateKey, message []byte) (string, error) {
	sig, err := ethcrypto.Sign(personalHash(message), key)
	if err != nil {
		return "", fmt.Errorf("crypto: sign message: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// PrincipalOf returns the principal for a private key's address.
func PrincipalOf(key *ecdsa.PrivateKey) domain.Principal {
	addr := ethcrypto.PubkeyToAddress(key.PublicKey)
	return domain.Principal(strings.ToLower(addr.Hex()))
}
