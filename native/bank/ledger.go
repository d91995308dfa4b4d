package bank

import (
	"errors"
	"fmt"
	"strings"

	corestate "creditbridge/core/state"
	"creditbridge/core/types"
)

var (
	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	// ErrSequenceMismatch is returned when an envelope reuses or skips a
	// sequence number.
	ErrSequenceMismatch = errors.New("bank: sequence mismatch")
)

var (
	balancePrefix  = []byte("bank/balance/")
	sequencePrefix = []byte("bank/sequence/")
)

// Store is the subset of the state manager the ledger uses.
type Store interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVIterate(prefix []byte, fn func(key, value []byte) (bool, error)) error
}

// Ledger tracks native balances and account sequence numbers.
type Ledger struct {
	store Store
}

// NewLedger wraps store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

func balanceKey(addr, denom string) []byte {
	return []byte(fmt.Sprintf("%s%s/%s", balancePrefix, addr, denom))
}

func sequenceKey(addr string) []byte {
	buf := make([]byte, len(sequencePrefix)+len(addr))
	copy(buf, sequencePrefix)
	copy(buf[len(sequencePrefix):], addr)
	return buf
}

// Balance returns addr's holdings of denom.
func (l *Ledger) Balance(addr, denom string) (types.Amount, error) {
	var amount types.Amount
	if _, err := l.store.KVGet(balanceKey(addr, denom), &amount); err != nil {
		return types.Amount{}, fmt.Errorf("bank: load balance: %w", err)
	}
	return amount, nil
}

func (l *Ledger) setBalance(addr, denom string, amount types.Amount) error {
	key := balanceKey(addr, denom)
	if amount.IsZero() {
		if err := l.store.KVDelete(key); err != nil {
			return fmt.Errorf("bank: clear balance: %w", err)
		}
		return nil
	}
	if err := l.store.KVPut(key, amount); err != nil {
		return fmt.Errorf("bank: save balance: %w", err)
	}
	return nil
}

// Balances lists every non-zero balance held by addr.
func (l *Ledger) Balances(addr string) ([]types.Coin, error) {
	prefix := []byte(fmt.Sprintf("%s%s/", balancePrefix, addr))
	coins := make([]types.Coin, 0)
	err := l.store.KVIterate(prefix, func(key, value []byte) (bool, error) {
		var amount types.Amount
		if err := corestate.DecodeValue(value, &amount); err != nil {
			return false, fmt.Errorf("bank: decode balance: %w", err)
		}
		coins = append(coins, types.Coin{Denom: strings.TrimPrefix(string(key), string(prefix)), Amount: amount})
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return coins, nil
}

// Credit mints amount of denom into addr. Used for genesis allocations and
// for escrowing attached funds.
func (l *Ledger) Credit(addr string, coin types.Coin) error {
	if err := coin.Validate(); err != nil {
		return err
	}
	current, err := l.Balance(addr, coin.Denom)
	if err != nil {
		return err
	}
	next, ok := current.CheckedAdd(coin.Amount)
	if !ok {
		return fmt.Errorf("bank: balance overflow for %s", addr)
	}
	return l.setBalance(addr, coin.Denom, next)
}

// Debit removes amount of denom from addr.
func (l *Ledger) Debit(addr string, coin types.Coin) error {
	if err := coin.Validate(); err != nil {
		return err
	}
	current, err := l.Balance(addr, coin.Denom)
	if err != nil {
		return err
	}
	next, ok := current.CheckedSub(coin.Amount)
	if !ok {
		return fmt.Errorf("%w: %s holds %s%s, needs %s", ErrInsufficientFunds, addr, current, coin.Denom, coin.Amount)
	}
	return l.setBalance(addr, coin.Denom, next)
}

// Transfer moves coins from one account to another.
func (l *Ledger) Transfer(from, to string, coins []types.Coin) error {
	for _, coin := range coins {
		if coin.Amount.IsZero() {
			continue
		}
		if err := l.Debit(from, coin); err != nil {
			return err
		}
		if err := l.Credit(to, coin); err != nil {
			return err
		}
	}
	return nil
}

// Apply executes a transfer instruction emitted by a contract account.
func (l *Ledger) Apply(from string, msg types.BankSend) error {
	if strings.TrimSpace(msg.ToAddress) == "" {
		return fmt.Errorf("bank: send recipient required")
	}
	return l.Transfer(from, msg.ToAddress, msg.Amount)
}

// Sequence returns the next sequence number expected from addr.
func (l *Ledger) Sequence(addr string) (uint64, error) {
	var seq uint64
	if _, err := l.store.KVGet(sequenceKey(addr), &seq); err != nil {
		return 0, fmt.Errorf("bank: load sequence: %w", err)
	}
	return seq, nil
}

// UseSequence checks that seq is the expected value for addr and advances it.
func (l *Ledger) UseSequence(addr string, seq uint64) error {
	expected, err := l.Sequence(addr)
	if err != nil {
		return err
	}
	if seq != expected {
		return fmt.Errorf("%w: expected %d, got %d", ErrSequenceMismatch, expected, seq)
	}
	if err := l.store.KVPut(sequenceKey(addr), expected+1); err != nil {
		return fmt.Errorf("bank: save sequence: %w", err)
	}
	return nil
}
