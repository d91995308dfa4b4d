package types

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func TestEnvelopeSignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	env := &Envelope{
		ChainID:  "shido-testnet-1",
		Contract: "bridge",
		Sequence: 3,
		Msg:      json.RawMessage(`{ "deposit": {} }`),
		Funds:    []Coin{NewCoin("ushido", 100)},
	}
	if err := env.Sign(key); err != nil {
		t.Fatalf("sign: %v", err)
	}
	from, err := env.From()
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !bytes.Equal(from, crypto.PubkeyToAddress(key.PublicKey).Bytes()) {
		t.Fatalf("recovered unexpected sender %x", from)
	}

	// Whitespace in the message does not change the signed digest.
	compact := *env
	compact.from = nil
	compact.Msg = json.RawMessage(`{"deposit":{}}`)
	got, err := compact.From()
	if err != nil || !bytes.Equal(got, from) {
		t.Fatalf("compact msg should recover same sender: %x %v", got, err)
	}

	tampered := *env
	tampered.from = nil
	tampered.Sequence = 4
	other, err := tampered.From()
	if err == nil && bytes.Equal(other, from) {
		t.Fatalf("tampered envelope recovered original sender")
	}
}

func TestEnvelopeUnsigned(t *testing.T) {
	env := &Envelope{ChainID: "c", Msg: json.RawMessage(`{}`)}
	if _, err := env.From(); err != ErrEnvelopeUnsigned {
		t.Fatalf("expected unsigned error, got %v", err)
	}
}
