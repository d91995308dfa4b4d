package bridge

import "fmt"

// Treasury guards the contract's native balance. Transfers queued during the
// current invocation are counted as already spent.
type Treasury struct {
	store    Storage
	ledger   Ledger
	contract string
	denom    string
	queued   Amount
}

// NewTreasury guards the contract balance of denom held in ledger.
func NewTreasury(store Storage, ledger Ledger, contract, denom string) *Treasury {
	return &Treasury{store: store, ledger: ledger, contract: contract, denom: denom}
}

// Balance is the ledger balance minus queued outflows.
func (t *Treasury) Balance() (Amount, error) {
	if t.ledger == nil {
		return Amount{}, fmt.Errorf("bridge: ledger not configured")
	}
	balance, err := t.ledger.Balance(t.contract, t.denom)
	if err != nil {
		return Amount{}, fmt.Errorf("bridge: query treasury balance: %w", err)
	}
	return balance.SaturatingSub(t.queued), nil
}

// CheckPayout verifies that sending outgoing keeps the balance at or above
// the reserve floor.
func (t *Treasury) CheckPayout(outgoing, minReserve Amount) error {
	available, err := t.Balance()
	if err != nil {
		return err
	}
	remaining, ok := available.CheckedSub(outgoing)
	if !ok || remaining.Lt(minReserve) {
		return errInsufficientTreasury(outgoing.String(), available.String(), minReserve.String())
	}
	return nil
}

// CheckDrain verifies an owner withdrawal against the reserve floor and
// returns the balance left afterwards.
func (t *Treasury) CheckDrain(amount, minReserve Amount) (Amount, error) {
	available, err := t.Balance()
	if err != nil {
		return Amount{}, err
	}
	remaining, ok := available.CheckedSub(amount)
	if !ok || remaining.Lt(minReserve) {
		return Amount{}, errReserveBreached(minReserve.String())
	}
	return remaining, nil
}

// Queue records an outflow that the host will apply after the invocation.
func (t *Treasury) Queue(amount Amount) error {
	next, ok := t.queued.CheckedAdd(amount)
	if !ok {
		return fail(ErrOverflow)
	}
	t.queued = next
	return nil
}

// Queued returns the outflows recorded so far.
func (t *Treasury) Queued() Amount { return t.queued }

// Peak returns the highest balance observed at a deposit or funding.
func (t *Treasury) Peak() (Amount, error) {
	peak, _, err := loadAmount(t.store, peakBalanceKey)
	return peak, err
}

// RatchetPeak raises the stored peak to the current balance if higher.
func (t *Treasury) RatchetPeak() (Amount, error) {
	balance, err := t.Balance()
	if err != nil {
		return Amount{}, err
	}
	peak, err := t.Peak()
	if err != nil {
		return Amount{}, err
	}
	if balance.Gt(peak) {
		if err := t.store.KVPut(peakBalanceKey, balance); err != nil {
			return Amount{}, fmt.Errorf("bridge: save peak balance: %w", err)
		}
		return balance, nil
	}
	return peak, nil
}
