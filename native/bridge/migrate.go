package bridge

import (
	"fmt"

	"creditbridge/core/events"
)

// Migrate upgrades state written by older code. A legacy single-list global
// ledger is split into id-indexed records 1..n with the cursor at 1; without
// one, missing counters are created at zero. Running it again is a no-op
// apart from rewriting the contract version.
func (e *Engine) Migrate(env Env) (*Response, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.store.KVPut(contractInfoKey, ContractInfo{Contract: ContractName, Version: ContractVersion}); err != nil {
		return nil, fmt.Errorf("bridge: save contract info: %w", err)
	}

	var legacy []WithdrawalRecord
	hasLegacy, err := e.store.KVGet(legacyGlobalKey, &legacy)
	if err != nil {
		return nil, fmt.Errorf("bridge: load legacy global ledger: %w", err)
	}
	var converted uint64
	if hasLegacy {
		for _, record := range legacy {
			converted++
			if err := e.store.KVPut(globalRecordKey(converted), record); err != nil {
				return nil, fmt.Errorf("bridge: save global record: %w", err)
			}
		}
		if err := saveUint64(e.store, globalCounterKey, converted); err != nil {
			return nil, err
		}
		// An empty legacy list leaves the cursor at zero so oldest <= counter.
		oldest := uint64(1)
		if converted == 0 {
			oldest = 0
		}
		if err := saveUint64(e.store, globalOldestKey, oldest); err != nil {
			return nil, err
		}
		if err := e.store.KVDelete(legacyGlobalKey); err != nil {
			return nil, fmt.Errorf("bridge: clear legacy global ledger: %w", err)
		}
	} else {
		for _, key := range [][]byte{globalCounterKey, globalOldestKey} {
			_, ok, err := loadUint64(e.store, key)
			if err != nil {
				return nil, err
			}
			if !ok {
				if err := saveUint64(e.store, key, 0); err != nil {
					return nil, err
				}
			}
		}
	}

	return newResponse("migrate").
		attr("version", ContractVersion).
		emit(events.BridgeMigrated{Version: ContractVersion, LegacyConverted: converted}), nil
}
