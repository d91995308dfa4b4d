package bridge

import "fmt"

var (
	configKey        = []byte("bridge/config")
	contractInfoKey  = []byte("bridge/contract_info")
	peakBalanceKey   = []byte("bridge/peak")
	pendingOracleKey = []byte("bridge/pending/oracle")
	pendingOwnerKey  = []byte("bridge/pending/owner")
	globalCounterKey = []byte("bridge/global/counter")
	globalOldestKey  = []byte("bridge/global/oldest")
	// legacyGlobalKey holds the single-list global ledger written by
	// version 0.1 contracts. Migrate converts it to id-indexed records.
	legacyGlobalKey = []byte("bridge/global_wd")

	noncePrefix         = []byte("bridge/nonce/")
	playerHistoryPrefix = []byte("bridge/player/wd/")
	playerLastPrefix    = []byte("bridge/player/last/")
	globalRecordPrefix  = []byte("bridge/global/wd/")
)

func prefixed(prefix []byte, suffix string) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return buf
}

func nonceKey(nonce string) []byte { return prefixed(noncePrefix, nonce) }

func playerHistoryKey(player string) []byte { return prefixed(playerHistoryPrefix, player) }

func playerLastKey(player string) []byte { return prefixed(playerLastPrefix, player) }

// globalRecordKey renders ids as fixed-width hex so records sort by id.
func globalRecordKey(id uint64) []byte {
	return prefixed(globalRecordPrefix, fmt.Sprintf("%016x", id))
}
