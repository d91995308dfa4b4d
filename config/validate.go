package config

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"creditbridge/core/types"
	"creditbridge/crypto"
	"creditbridge/native/bridge"
)

// Validate checks the node settings and, when present, the genesis and
// bridge sections. It does not repeat the bridge's own parameter checks;
// those run again when the instantiate message executes.
func (c *Config) Validate() error {
	prefix := c.Prefix()
	if c.ChainID == "" {
		return fmt.Errorf("ChainID must be set")
	}
	if _, err := crypto.ValidateAddress(c.ContractAddress, prefix); err != nil {
		return fmt.Errorf("ContractAddress: %w", err)
	}
	if c.RPC.RequestsPerMinute < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("RPC: RequestsPerMinute and Burst must not be negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("Telemetry: SampleRatio must be within [0,1]")
	}
	if len(c.Genesis.Balances) > 0 && strings.TrimSpace(c.Bridge.Denom) == "" {
		return fmt.Errorf("Genesis: Balances require Bridge.Denom")
	}
	if _, err := c.GenesisBalances(); err != nil {
		return err
	}
	if c.Bridge.Enabled() {
		if _, err := c.InstantiateMsg(); err != nil {
			return err
		}
	}
	return nil
}

// GenesisBalance is one initial allocation.
type GenesisBalance struct {
	Address string
	Coin    types.Coin
}

// GenesisBalances returns the allocations sorted by address.
func (c *Config) GenesisBalances() ([]GenesisBalance, error) {
	out := make([]GenesisBalance, 0, len(c.Genesis.Balances))
	for addr, raw := range c.Genesis.Balances {
		if _, err := crypto.ValidateAddress(addr, c.Prefix()); err != nil {
			return nil, fmt.Errorf("Genesis.Balances: %w", err)
		}
		amount, err := parseAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("Genesis.Balances[%s]: %w", addr, err)
		}
		out = append(out, GenesisBalance{Address: addr, Coin: types.Coin{Denom: c.Bridge.Denom, Amount: amount}})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// InstantiateMsg converts the [Bridge] section into the message executed on
// first boot. The chain id is taken from the node configuration.
func (c *Config) InstantiateMsg() (bridge.InstantiateMsg, error) {
	b := c.Bridge
	pub, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(b.OraclePubKey), "0x"))
	if err != nil {
		return bridge.InstantiateMsg{}, fmt.Errorf("Bridge.OraclePubKey: %w", err)
	}
	msg := bridge.InstantiateMsg{
		Owner:           strings.TrimSpace(b.Owner),
		Oracle:          strings.TrimSpace(b.Oracle),
		OraclePubKey:    pub,
		Denom:           strings.TrimSpace(b.Denom),
		FeeBps:          b.FeeBps,
		Treasury:        strings.TrimSpace(b.Treasury),
		CooldownSeconds: b.CooldownSeconds,
		ChainID:         c.ChainID,
	}
	amounts := []struct {
		name string
		raw  string
		dst  *types.Amount
	}{
		{"RateCredits", b.RateCredits, &msg.RateCredits},
		{"RateTokens", b.RateTokens, &msg.RateTokens},
		{"MinDeposit", b.MinDeposit, &msg.MinDeposit},
		{"PlayerDailyLimit", b.PlayerDailyLimit, &msg.PlayerDailyLimit},
		{"GlobalDailyLimit", b.GlobalDailyLimit, &msg.GlobalDailyLimit},
		{"MinReserve", b.MinReserve, &msg.MinReserve},
	}
	for _, a := range amounts {
		v, err := parseAmount(a.raw)
		if err != nil {
			return bridge.InstantiateMsg{}, fmt.Errorf("Bridge.%s: %w", a.name, err)
		}
		*a.dst = v
	}
	return msg, nil
}
