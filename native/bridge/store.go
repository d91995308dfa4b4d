package bridge

import (
	"fmt"

	"creditbridge/core/types"
)

// Storage is the key/value surface the bridge persists into. Values are
// encoded by the implementation; the bridge never sees raw bytes.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Ledger answers native balance queries for the contract account.
type Ledger interface {
	Balance(addr, denom string) (types.Amount, error)
}

func loadConfig(store Storage) (*Config, error) {
	var cfg Config
	ok, err := store.KVGet(configKey, &cfg)
	if err != nil {
		return nil, fmt.Errorf("bridge: load config: %w", err)
	}
	if !ok {
		return nil, fail(ErrNotInitialised)
	}
	return &cfg, nil
}

func saveConfig(store Storage, cfg *Config) error {
	if err := store.KVPut(configKey, cfg); err != nil {
		return fmt.Errorf("bridge: save config: %w", err)
	}
	return nil
}

func loadUint64(store Storage, key []byte) (uint64, bool, error) {
	var v uint64
	ok, err := store.KVGet(key, &v)
	if err != nil {
		return 0, false, fmt.Errorf("bridge: load %s: %w", key, err)
	}
	return v, ok, nil
}

func saveUint64(store Storage, key []byte, v uint64) error {
	if err := store.KVPut(key, v); err != nil {
		return fmt.Errorf("bridge: save %s: %w", key, err)
	}
	return nil
}

func loadAmount(store Storage, key []byte) (Amount, bool, error) {
	var v Amount
	ok, err := store.KVGet(key, &v)
	if err != nil {
		return Amount{}, false, fmt.Errorf("bridge: load %s: %w", key, err)
	}
	return v, ok, nil
}

func loadPendingOracle(store Storage) (*PendingOracleTransfer, error) {
	var pending PendingOracleTransfer
	ok, err := store.KVGet(pendingOracleKey, &pending)
	if err != nil {
		return nil, fmt.Errorf("bridge: load pending oracle: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &pending, nil
}

func loadPendingOwner(store Storage) (*PendingOwnerTransfer, error) {
	var pending PendingOwnerTransfer
	ok, err := store.KVGet(pendingOwnerKey, &pending)
	if err != nil {
		return nil, fmt.Errorf("bridge: load pending owner: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &pending, nil
}

func loadContractInfo(store Storage) (*ContractInfo, error) {
	var info ContractInfo
	ok, err := store.KVGet(contractInfoKey, &info)
	if err != nil {
		return nil, fmt.Errorf("bridge: load contract info: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &info, nil
}
