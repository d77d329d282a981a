package database

import (
	"crypto/ecdsa"
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroAccountID represents the null account. It can never take part
// in a stream.
const ZeroAccountID = AccountID("0x0000000000000000000000000000000000000000")

// AccountID represents an account taking part in a stream, either as the
// sender or the recipient of the payment.
type AccountID string

// ToAccountID converts a hex-encoded string to an account id and validates
// the hex-encoded string is formatted correctly.
func ToAccountID(hex string) (AccountID, error) {
	a := AccountID(hex)
	if !a.IsAccountID() {
		return "", errors.New("invalid account format")
	}

	return a, nil
}

// PublicKeyToAccountID converts the public key to an account id value.
func PublicKeyToAccountID(pk ecdsa.PublicKey) AccountID {
	return AccountID(crypto.PubkeyToAddress(pk).String())
}

// IsAccountID verifies whether the underlying data represents a valid
// hex-encoded account.
func (a AccountID) IsAccountID() bool {
	const addressLength = 20

	if has0xPrefix(string(a)) {
		a = a[2:]
	}

	return len(a) == 2*addressLength && isHex(string(a))
}

// IsZero reports whether the account is the null account.
func (a AccountID) IsZero() bool {
	return a == ZeroAccountID
}

// =============================================================================

// AssetID represents the token being streamed. Compounding streams require
// the asset to be on the protocol allow list.
type AssetID string

// ToAssetID converts a hex-encoded string to an asset id and validates the
// hex-encoded string is formatted correctly.
func ToAssetID(hex string) (AssetID, error) {
	a := AssetID(hex)
	if !a.IsAssetID() {
		return "", errors.New("invalid asset format")
	}

	return a, nil
}

// IsAssetID verifies whether the underlying data represents a valid
// hex-encoded asset.
func (a AssetID) IsAssetID() bool {
	const addressLength = 20

	if has0xPrefix(string(a)) {
		a = a[2:]
	}

	return len(a) == 2*addressLength && isHex(string(a))
}

// =============================================================================

// has0xPrefix validates the identifier starts with a 0x.
func has0xPrefix(a string) bool {
	return len(a) >= 2 && a[0] == '0' && (a[1] == 'x' || a[1] == 'X')
}

// isHex validates whether each byte is a valid hexadecimal string.
func isHex(a string) bool {
	if len(a)%2 != 0 {
		return false
	}

	for _, c := range []byte(a) {
		if !isHexCharacter(c) {
			return false
		}
	}

	return true
}

// isHexCharacter returns bool of c being a valid hexadecimal.
func isHexCharacter(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
