package types

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

var (
	// ErrEnvelopeUnsigned is returned when a sender is requested from an
	// envelope without a signature.
	ErrEnvelopeUnsigned = errors.New("envelope: missing signature")
)

// Envelope is a signed request to execute a contract message. The sequence
// number protects the envelope itself from replay; it is unrelated to the
// nonces carried inside withdrawal claims.
type Envelope struct {
	ChainID   string          `json:"chain_id"`
	Contract  string          `json:"contract"`
	Sequence  uint64          `json:"sequence"`
	Msg       json.RawMessage `json:"msg"`
	Funds     []Coin          `json:"funds,omitempty"`
	Signature []byte          `json:"signature,omitempty"`

	from []byte
}

type envelopeSigningPayload struct {
	ChainID  string
	Contract string
	Sequence uint64
	Msg      []byte
	Funds    []Coin
}

// Hash returns the keccak digest the sender signs.
func (e *Envelope) Hash() ([]byte, error) {
	msg := e.Msg
	if len(msg) > 0 {
		var compact bytes.Buffer
		if err := json.Compact(&compact, msg); err != nil {
			return nil, fmt.Errorf("envelope: msg is not valid json: %w", err)
		}
		msg = compact.Bytes()
	}
	funds := e.Funds
	if funds == nil {
		funds = []Coin{}
	}
	encoded, err := rlp.EncodeToBytes(envelopeSigningPayload{
		ChainID:  e.ChainID,
		Contract: e.Contract,
		Sequence: e.Sequence,
		Msg:      msg,
		Funds:    funds,
	})
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(encoded), nil
}

// Sign attaches a recoverable secp256k1 signature.
func (e *Envelope) Sign(privKey *ecdsa.PrivateKey) error {
	hash, err := e.Hash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash, privKey)
	if err != nil {
		return err
	}
	e.Signature = sig
	e.from = nil
	return nil
}

// From recovers the 20-byte sender address from the signature.
func (e *Envelope) From() ([]byte, error) {
	if e.from != nil {
		return e.from, nil
	}
	if len(e.Signature) == 0 {
		return nil, ErrEnvelopeUnsigned
	}
	if len(e.Signature) != crypto.SignatureLength {
		return nil, fmt.Errorf("envelope: signature must be %d bytes", crypto.SignatureLength)
	}
	hash, err := e.Hash()
	if err != nil {
		return nil, err
	}
	pubKey, err := crypto.SigToPub(hash, e.Signature)
	if err != nil {
		return nil, err
	}
	e.from = crypto.PubkeyToAddress(*pubKey).Bytes()
	return e.from, nil
}
