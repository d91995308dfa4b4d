package bridge

import (
	"fmt"

	"creditbridge/core/types"
)

const (
	// RollingWindowSeconds is the width of both withdrawal windows. A record
	// at exactly now-RollingWindowSeconds is still inside the window.
	RollingWindowSeconds uint64 = 24 * 60 * 60
	// PruneBatchSize bounds how many global ids one withdrawal retires.
	PruneBatchSize = 10
)

// Limiter enforces the per-player and global rolling caps on credit
// redemptions.
type Limiter struct {
	store Storage
}

// NewLimiter returns a limiter over the withdrawal records in store.
func NewLimiter(store Storage) *Limiter {
	return &Limiter{store: store}
}

func windowCutoff(now uint64) uint64 {
	return saturatingSub(now, RollingWindowSeconds)
}

// filterWindow keeps records inside the window and sums them. The sum
// saturates; caps are far below 2^128 so saturation is never reached in
// practice.
func filterWindow(records []WithdrawalRecord, cutoff uint64) ([]WithdrawalRecord, Amount) {
	active := make([]WithdrawalRecord, 0, len(records))
	var total Amount
	for _, record := range records {
		if record.Timestamp < cutoff {
			continue
		}
		total = saturatingAddAmount(total, record.AmountCredits)
		active = append(active, record)
	}
	return active, total
}

func saturatingAddAmount(a, b Amount) Amount {
	sum, ok := a.CheckedAdd(b)
	if !ok {
		return types.MaxAmount()
	}
	return sum
}

func (l *Limiter) playerHistory(player string) ([]WithdrawalRecord, error) {
	var records []WithdrawalRecord
	if _, err := l.store.KVGet(playerHistoryKey(player), &records); err != nil {
		return nil, fmt.Errorf("bridge: load player history: %w", err)
	}
	return records, nil
}

// LastWithdrawal returns the time of the player's most recent withdrawal.
func (l *Limiter) LastWithdrawal(player string) (uint64, bool, error) {
	ts, ok, err := loadUint64(l.store, playerLastKey(player))
	if err != nil {
		return 0, false, err
	}
	return ts, ok, nil
}

// PlayerUsage sums the player's credits redeemed inside the window.
func (l *Limiter) PlayerUsage(player string, now uint64) (Amount, error) {
	records, err := l.playerHistory(player)
	if err != nil {
		return Amount{}, err
	}
	_, used := filterWindow(records, windowCutoff(now))
	return used, nil
}

// CheckPlayer enforces the cooldown then the player cap.
func (l *Limiter) CheckPlayer(player string, amount Amount, now uint64, cfg *Config) error {
	last, ok, err := l.LastWithdrawal(player)
	if err != nil {
		return err
	}
	if ok {
		until := saturatingAdd(last, cfg.CooldownSeconds)
		if now < until {
			return errCooldownActive(until)
		}
	}
	used, err := l.PlayerUsage(player, now)
	if err != nil {
		return err
	}
	total, ok := used.CheckedAdd(amount)
	if !ok {
		return fail(ErrOverflow)
	}
	if total.Gt(cfg.PlayerDailyLimit) {
		return errLimitExceeded(ErrPlayerDailyLimitExceeded, "player", used.String(), amount.String(), cfg.PlayerDailyLimit.String())
	}
	return nil
}

// GlobalUsage sums every global record between the oldest cursor and the
// counter that falls inside the window.
func (l *Limiter) GlobalUsage(now uint64) (Amount, error) {
	oldest, _, err := loadUint64(l.store, globalOldestKey)
	if err != nil {
		return Amount{}, err
	}
	counter, _, err := loadUint64(l.store, globalCounterKey)
	if err != nil {
		return Amount{}, err
	}
	cutoff := windowCutoff(now)
	var used Amount
	for id := oldest; id <= counter; id++ {
		record, ok, err := l.globalRecord(id)
		if err != nil {
			return Amount{}, err
		}
		if ok && record.Timestamp >= cutoff {
			used = saturatingAddAmount(used, record.AmountCredits)
		}
		if id == ^uint64(0) {
			break
		}
	}
	return used, nil
}

// CheckGlobal enforces the global cap.
func (l *Limiter) CheckGlobal(amount Amount, now uint64, cfg *Config) error {
	used, err := l.GlobalUsage(now)
	if err != nil {
		return err
	}
	total, ok := used.CheckedAdd(amount)
	if !ok {
		return fail(ErrOverflow)
	}
	if total.Gt(cfg.GlobalDailyLimit) {
		return errLimitExceeded(ErrGlobalDailyLimitExceeded, "global", used.String(), amount.String(), cfg.GlobalDailyLimit.String())
	}
	return nil
}

// Record commits a withdrawal to both windows. It must only run after every
// check has passed.
func (l *Limiter) Record(player string, record WithdrawalRecord) (int, error) {
	if err := l.recordPlayer(player, record); err != nil {
		return 0, err
	}
	return l.recordGlobal(record)
}

func (l *Limiter) recordPlayer(player string, record WithdrawalRecord) error {
	records, err := l.playerHistory(player)
	if err != nil {
		return err
	}
	active, _ := filterWindow(records, windowCutoff(record.Timestamp))
	active = append(active, record)
	if err := l.store.KVPut(playerHistoryKey(player), active); err != nil {
		return fmt.Errorf("bridge: save player history: %w", err)
	}
	return saveUint64(l.store, playerLastKey(player), record.Timestamp)
}

// recordGlobal appends under counter+1 then retires at most PruneBatchSize
// contiguous stale or missing ids from the oldest cursor. The newest record
// is never pruned. It returns the number of ids retired.
func (l *Limiter) recordGlobal(record WithdrawalRecord) (int, error) {
	counter, _, err := loadUint64(l.store, globalCounterKey)
	if err != nil {
		return 0, err
	}
	if counter == ^uint64(0) {
		return 0, fail(ErrOverflow)
	}
	counter++
	if err := l.store.KVPut(globalRecordKey(counter), record); err != nil {
		return 0, fmt.Errorf("bridge: save global record: %w", err)
	}
	if err := saveUint64(l.store, globalCounterKey, counter); err != nil {
		return 0, err
	}

	cutoff := windowCutoff(record.Timestamp)
	oldest, _, err := loadUint64(l.store, globalOldestKey)
	if err != nil {
		return 0, err
	}
	pruned := 0
	for oldest < counter && pruned < PruneBatchSize {
		old, ok, err := l.globalRecord(oldest)
		if err != nil {
			return 0, err
		}
		if ok {
			if old.Timestamp >= cutoff {
				break
			}
			if err := l.store.KVDelete(globalRecordKey(oldest)); err != nil {
				return 0, fmt.Errorf("bridge: prune global record: %w", err)
			}
		}
		oldest++
		pruned++
	}
	if err := saveUint64(l.store, globalOldestKey, oldest); err != nil {
		return 0, err
	}
	return pruned, nil
}

func (l *Limiter) globalRecord(id uint64) (WithdrawalRecord, bool, error) {
	var record WithdrawalRecord
	ok, err := l.store.KVGet(globalRecordKey(id), &record)
	if err != nil {
		return WithdrawalRecord{}, false, fmt.Errorf("bridge: load global record %d: %w", id, err)
	}
	return record, ok, nil
}
