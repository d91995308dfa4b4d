package main

import (
	"context"
	"fmt"
	"log/slog"

	"creditbridge/config"
	"creditbridge/core/runtime"
	"creditbridge/core/types"
)

// bootstrap applies genesis allocations and the [Bridge] instantiate
// parameters on an empty store, then optionally runs the migrate hook.
// A store holding a bridge configuration is never re-instantiated.
func bootstrap(ctx context.Context, rt *runtime.Runtime, cfg *config.Config, logger *slog.Logger, migrate bool) error {
	instantiated, err := rt.Instantiated()
	if err != nil {
		return fmt.Errorf("inspect bridge state: %w", err)
	}
	if !instantiated {
		if !cfg.Bridge.Enabled() {
			logger.Warn("bridge not instantiated and no [Bridge] section configured; only queries will succeed")
			return nil
		}
		balances, err := cfg.GenesisBalances()
		if err != nil {
			return err
		}
		for _, b := range balances {
			if err := rt.Fund(ctx, b.Address, []types.Coin{b.Coin}); err != nil {
				return fmt.Errorf("genesis balance %s: %w", b.Address, err)
			}
		}
		msg, err := cfg.InstantiateMsg()
		if err != nil {
			return err
		}
		if _, err := rt.Instantiate(ctx, msg.Owner, msg); err != nil {
			return fmt.Errorf("instantiate bridge: %w", err)
		}
		logger.Info("bridge instantiated",
			slog.String("owner", msg.Owner),
			slog.String("denom", msg.Denom),
			slog.Int("genesis_accounts", len(balances)))
		return nil
	}
	if !migrate {
		return nil
	}
	receipt, err := rt.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate bridge: %w", err)
	}
	version, _ := receipt.Response.Attribute("version")
	logger.Info("bridge state migrated", slog.String("version", version))
	return nil
}
