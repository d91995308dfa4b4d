package bridge

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	CompressedPubKeyLength   = 33
	UncompressedPubKeyLength = 65
	// SignatureLength is a compact r||s signature without recovery id.
	SignatureLength = 64
)

var (
	secp256k1N     = ethcrypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// WithdrawalMessage renders the canonical payload the oracle signs. The field
// order and separator are part of the protocol.
func WithdrawalMessage(chainID, contract, nonce, player string, credits, tokens Amount) string {
	return fmt.Sprintf("withdraw:%s:%s:%s:%s:%s:%s", chainID, contract, nonce, player, credits, tokens)
}

// WithdrawalDigest is the SHA-256 digest of WithdrawalMessage.
func WithdrawalDigest(chainID, contract, nonce, player string, credits, tokens Amount) []byte {
	sum := sha256.Sum256([]byte(WithdrawalMessage(chainID, contract, nonce, player, credits, tokens)))
	return sum[:]
}

// ValidatePubKey accepts 33-byte compressed or 65-byte uncompressed keys.
func ValidatePubKey(pub []byte) error {
	if len(pub) != CompressedPubKeyLength && len(pub) != UncompressedPubKeyLength {
		return errInvalidPubkeyLength(len(pub))
	}
	return nil
}

// VerifyWithdrawal checks sig over digest against the oracle key.
// Malformed keys or signatures yield ErrSignatureVerificationFailed; a well
// formed signature that does not verify yields ErrInvalidSignature.
func VerifyWithdrawal(pub, digest, sig []byte) error {
	if len(digest) != sha256.Size {
		return fail(ErrSignatureVerificationFailed)
	}
	if err := parsePubKey(pub); err != nil {
		return newError(ErrSignatureVerificationFailed, fmt.Sprintf("signature verification failed: %v", err))
	}
	normalized, err := normalizeSignature(sig)
	if err != nil {
		return newError(ErrSignatureVerificationFailed, fmt.Sprintf("signature verification failed: %v", err))
	}
	if !ethcrypto.VerifySignature(pub, digest, normalized) {
		return fail(ErrInvalidSignature)
	}
	return nil
}

func parsePubKey(pub []byte) error {
	switch len(pub) {
	case CompressedPubKeyLength:
		_, err := ethcrypto.DecompressPubkey(pub)
		return err
	case UncompressedPubKeyLength:
		_, err := ethcrypto.UnmarshalPubkey(pub)
		return err
	default:
		return fmt.Errorf("public key must be %d or %d bytes, got %d", CompressedPubKeyLength, UncompressedPubKeyLength, len(pub))
	}
}

// normalizeSignature range-checks r and s and folds high-s signatures into
// the low half of the curve order so both encodings of a signature verify.
func normalizeSignature(sig []byte) ([]byte, error) {
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", SignatureLength, len(sig))
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	if r.Sign() == 0 || s.Sign() == 0 || r.Cmp(secp256k1N) >= 0 || s.Cmp(secp256k1N) >= 0 {
		return nil, fmt.Errorf("signature scalars out of range")
	}
	out := make([]byte, SignatureLength)
	copy(out, sig)
	if s.Cmp(secp256k1HalfN) > 0 {
		s.Sub(secp256k1N, s)
		s.FillBytes(out[32:])
	}
	return out, nil
}

// SignWithdrawal produces the compact signature the oracle attaches to a
// withdrawal claim. It is used by the oracle tooling and tests.
func SignWithdrawal(digest []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := ethcrypto.Sign(digest, key)
	if err != nil {
		return nil, err
	}
	return sig[:SignatureLength], nil
}
