package bridge

import (
	"fmt"
	"strconv"
	"strings"
)

// NonceExpiryWindow is how long a signed claim stays redeemable, in seconds.
const NonceExpiryWindow uint64 = 7 * 24 * 60 * 60

// ParseNonceTimestamp extracts the issuance time from a "<unix-ts>:<suffix>"
// nonce. The suffix may contain further colons and may be empty.
func ParseNonceTimestamp(nonce string) (uint64, error) {
	head, _, found := strings.Cut(nonce, ":")
	if !found {
		return 0, fail(ErrInvalidNonceFormat)
	}
	ts, err := strconv.ParseUint(head, 10, 64)
	if err != nil {
		return 0, fail(ErrInvalidNonceFormat)
	}
	return ts, nil
}

// CheckNonceFresh rejects nonces issued more than NonceExpiryWindow seconds
// before now. Future timestamps are accepted.
func CheckNonceFresh(nonce string, now uint64) error {
	ts, err := ParseNonceTimestamp(nonce)
	if err != nil {
		return err
	}
	if ts < saturatingSub(now, NonceExpiryWindow) {
		return errNonceExpired(NonceExpiryWindow)
	}
	return nil
}

// NonceLedger is the write-once set of consumed withdrawal nonces.
type NonceLedger struct {
	store Storage
}

// NewNonceLedger returns the used-nonce set kept in store.
func NewNonceLedger(store Storage) *NonceLedger {
	return &NonceLedger{store: store}
}

// Used reports whether nonce has been consumed.
func (l *NonceLedger) Used(nonce string) (bool, error) {
	var used bool
	ok, err := l.store.KVGet(nonceKey(nonce), &used)
	if err != nil {
		return false, fmt.Errorf("bridge: load nonce: %w", err)
	}
	return ok && used, nil
}

// Consume marks nonce as used. Callers check Used first; consuming twice is
// rejected so the set stays write-once.
func (l *NonceLedger) Consume(nonce string) error {
	used, err := l.Used(nonce)
	if err != nil {
		return err
	}
	if used {
		return errNonceAlreadyUsed(nonce)
	}
	if err := l.store.KVPut(nonceKey(nonce), true); err != nil {
		return fmt.Errorf("bridge: save nonce: %w", err)
	}
	return nil
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func saturatingAdd(a, b uint64) uint64 {
	if a+b < a {
		return ^uint64(0)
	}
	return a + b
}
