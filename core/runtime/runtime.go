package runtime

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"creditbridge/core/events"
	corestate "creditbridge/core/state"
	"creditbridge/core/types"
	"creditbridge/crypto"
	"creditbridge/native/bank"
	"creditbridge/native/bridge"
	"creditbridge/observability/logging"
	"creditbridge/observability/metrics"
	"creditbridge/storage"
)

var (
	ErrChainMismatch    = errors.New("runtime: envelope chain id does not match")
	ErrContractMismatch = errors.New("runtime: envelope targets a different contract")
	ErrSenderRequired   = errors.New("runtime: sender required")
)

var blockTimeKey = []byte("runtime/block_time")

// Config identifies the chain and bridge account the runtime serves.
type Config struct {
	ChainID  string
	Contract string
	Prefix   crypto.AddressPrefix
}

// Receipt is the committed outcome of a mutating invocation.
type Receipt struct {
	Sender    string           `json:"sender,omitempty"`
	Sequence  *uint64          `json:"sequence,omitempty"`
	BlockTime uint64           `json:"block_time"`
	Response  *bridge.Response `json:"response"`
}

// Runtime hosts the bridge contract. Invocations run one at a time; each
// runs on a private overlay that is committed atomically on success and
// discarded on failure, so a rejected call leaves no trace in state.
type Runtime struct {
	mu      sync.Mutex
	db      storage.Database
	cfg     Config
	clock   func() time.Time
	last    uint64
	emitter events.Emitter
	logger  *slog.Logger
	metrics *metrics.BridgeMetrics
	tracer  trace.Tracer
}

// Option customises a Runtime.
type Option func(*Runtime)

// WithClock replaces the wall clock used to derive block times.
func WithClock(clock func() time.Time) Option {
	return func(r *Runtime) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithEmitter receives every committed event.
func WithEmitter(emitter events.Emitter) Option {
	return func(r *Runtime) {
		if emitter != nil {
			r.emitter = emitter
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics overrides the metrics sink. Passing nil disables metrics.
func WithMetrics(m *metrics.BridgeMetrics) Option {
	return func(r *Runtime) { r.metrics = m }
}

// New opens a runtime over db. The last committed block time is restored
// so the clock never runs backwards across restarts.
func New(db storage.Database, cfg Config, opts ...Option) (*Runtime, error) {
	if db == nil {
		return nil, fmt.Errorf("runtime: database required")
	}
	cfg.ChainID = strings.TrimSpace(cfg.ChainID)
	if cfg.ChainID == "" {
		return nil, fmt.Errorf("runtime: chain id required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = crypto.DefaultPrefix
	}
	if _, err := crypto.ValidateAddress(cfg.Contract, cfg.Prefix); err != nil {
		return nil, fmt.Errorf("runtime: contract address: %w", err)
	}
	r := &Runtime{
		db:      db,
		cfg:     cfg,
		clock:   time.Now,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		metrics: metrics.Bridge(),
		tracer:  otel.Tracer("creditbridge/core/runtime"),
	}
	for _, opt := range opts {
		opt(r)
	}
	var last uint64
	if _, err := corestate.NewManager(db).KVGet(blockTimeKey, &last); err != nil {
		return nil, fmt.Errorf("runtime: load block time: %w", err)
	}
	r.last = last
	r.logger = r.logger.With(slog.String("component", "runtime"))
	return r, nil
}

func (r *Runtime) ChainID() string { return r.cfg.ChainID }

// Contract returns the bridge account address.
func (r *Runtime) Contract() string { return r.cfg.Contract }

// LastBlockTime returns the block time of the latest committed invocation.
func (r *Runtime) LastBlockTime() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// blockTime never goes below the last committed block time.
func (r *Runtime) blockTime() uint64 {
	now := r.clock().Unix()
	if now < 0 {
		now = 0
	}
	ts := uint64(now)
	if ts < r.last {
		return r.last
	}
	return ts
}

// call is one invocation. signature is the hex envelope signature and is
// empty for direct calls.
type call struct {
	action    string
	sender    string
	funds     []types.Coin
	sequence  *uint64
	signature string
	run       func(*bridge.Engine, bridge.Env, bridge.Info) (*bridge.Response, error)
}

// Instantiate writes the initial bridge configuration.
func (r *Runtime) Instantiate(ctx context.Context, sender string, msg bridge.InstantiateMsg) (*Receipt, error) {
	return r.invoke(ctx, call{
		action: "instantiate",
		sender: sender,
		run: func(e *bridge.Engine, env bridge.Env, info bridge.Info) (*bridge.Response, error) {
			return e.Instantiate(env, info, msg)
		},
	})
}

// Execute runs msg on behalf of sender, escrowing funds into the contract
// first. Callers are responsible for having authenticated sender.
func (r *Runtime) Execute(ctx context.Context, sender string, funds []types.Coin, msg *bridge.ExecuteMsg) (*Receipt, error) {
	if msg == nil {
		return nil, fmt.Errorf("runtime: message required")
	}
	action, err := msg.Action()
	if err != nil {
		return nil, err
	}
	return r.invoke(ctx, call{
		action: action,
		sender: sender,
		funds:  funds,
		run: func(e *bridge.Engine, env bridge.Env, info bridge.Info) (*bridge.Response, error) {
			return e.Execute(env, info, msg)
		},
	})
}

// Submit executes a signed envelope. The sender is recovered from the
// signature and the envelope sequence must match the account's next
// sequence. A well-sequenced envelope consumes its sequence even when the
// bridge rejects the message, so it cannot be replayed later.
func (r *Runtime) Submit(ctx context.Context, env *types.Envelope) (*Receipt, error) {
	if env == nil {
		return nil, fmt.Errorf("runtime: envelope required")
	}
	if env.ChainID != r.cfg.ChainID {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrChainMismatch, r.cfg.ChainID, env.ChainID)
	}
	if env.Contract != r.cfg.Contract {
		return nil, ErrContractMismatch
	}
	from, err := env.From()
	if err != nil {
		return nil, fmt.Errorf("runtime: recover sender: %w", err)
	}
	sender := crypto.NewAddress(r.cfg.Prefix, from).String()
	msg, err := bridge.ParseExecuteMsg(env.Msg)
	if err != nil {
		return nil, err
	}
	action, _ := msg.Action()
	seq := env.Sequence
	return r.invoke(ctx, call{
		action:    action,
		sender:    sender,
		funds:     env.Funds,
		sequence:  &seq,
		signature: hex.EncodeToString(env.Signature),
		run: func(e *bridge.Engine, benv bridge.Env, info bridge.Info) (*bridge.Response, error) {
			return e.Execute(benv, info, msg)
		},
	})
}

// Migrate upgrades stored state to the current layout.
func (r *Runtime) Migrate(ctx context.Context) (*Receipt, error) {
	return r.invoke(ctx, call{
		action: "migrate",
		run: func(e *bridge.Engine, env bridge.Env, _ bridge.Info) (*bridge.Response, error) {
			return e.Migrate(env)
		},
	})
}

func (r *Runtime) invoke(ctx context.Context, c call) (*Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, span := r.tracer.Start(ctx, "bridge."+c.action, trace.WithAttributes(
		attribute.String("bridge.action", c.action),
		attribute.String("bridge.sender", c.sender),
	))
	defer span.End()

	start := time.Now()
	now := r.blockTime()
	span.SetAttributes(attribute.Int64("bridge.block_time", int64(now)))

	resp, sequenced, err := r.apply(c, now)
	if err != nil && sequenced {
		if bumpErr := r.consumeSequence(c.sender, *c.sequence, now); bumpErr != nil {
			r.logger.Error("failed to consume envelope sequence",
				slog.String("sender", c.sender), slog.Any("error", bumpErr))
		}
	}
	code := ""
	if err != nil {
		code = bridge.Code(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
	}
	r.metrics.ObserveInvocation(c.action, code, time.Since(start))
	if err != nil {
		r.logger.Warn("bridge invocation rejected",
			slog.String("action", c.action),
			slog.String("sender", c.sender),
			slog.String("outcome", "rejected"),
			slog.String("code", code),
			logging.MaskField("signature", c.signature),
			slog.Any("error", err))
		return nil, err
	}

	r.logger.Info("bridge invocation committed",
		slog.String("action", c.action),
		slog.String("sender", c.sender),
		slog.String("outcome", "committed"),
		slog.Uint64("block_time", now),
		slog.Int("messages", len(resp.Messages)))
	for _, ev := range resp.Events {
		r.emitter.Emit(ev)
	}
	receipt := &Receipt{Sender: c.sender, BlockTime: now, Response: resp}
	if c.sequence != nil {
		seq := *c.sequence
		receipt.Sequence = &seq
	}
	return receipt, nil
}

// apply runs c on a fresh overlay. sequenced reports whether the envelope
// sequence check passed before the call failed.
func (r *Runtime) apply(c call, now uint64) (resp *bridge.Response, sequenced bool, err error) {
	overlay := corestate.NewOverlay(r.db)
	defer func() {
		if err != nil {
			overlay.Discard()
		}
	}()
	mgr := corestate.NewManager(overlay)
	ledger := bank.NewLedger(mgr)

	if c.sequence != nil {
		if err = ledger.UseSequence(c.sender, *c.sequence); err != nil {
			return nil, false, err
		}
		sequenced = true
	}
	if len(c.funds) > 0 {
		if strings.TrimSpace(c.sender) == "" {
			return nil, sequenced, ErrSenderRequired
		}
		if err = ledger.Transfer(c.sender, r.cfg.Contract, c.funds); err != nil {
			return nil, sequenced, fmt.Errorf("runtime: escrow funds: %w", err)
		}
	}

	engine := bridge.NewEngine(mgr, ledger)
	engine.SetAddressPrefix(r.cfg.Prefix)
	env := bridge.Env{BlockTime: now, Contract: r.cfg.Contract}
	info := bridge.Info{Sender: c.sender, Funds: c.funds}
	resp, err = c.run(engine, env, info)
	if err != nil {
		return nil, sequenced, err
	}
	for _, send := range resp.Messages {
		if err = ledger.Apply(r.cfg.Contract, send); err != nil {
			return nil, sequenced, fmt.Errorf("runtime: apply transfer: %w", err)
		}
	}
	if err = mgr.KVPut(blockTimeKey, now); err != nil {
		return nil, sequenced, fmt.Errorf("runtime: save block time: %w", err)
	}
	r.observeState(engine, ledger, c, resp)
	if err = overlay.Commit(); err != nil {
		return nil, sequenced, fmt.Errorf("runtime: commit: %w", err)
	}
	r.last = now
	return resp, sequenced, nil
}

func (r *Runtime) observeState(engine *bridge.Engine, ledger *bank.Ledger, c call, resp *bridge.Response) {
	if r.metrics == nil {
		return
	}
	cfg, err := engine.Config()
	if err != nil {
		return
	}
	r.metrics.SetPaused(cfg.Paused)
	if balance, err := ledger.Balance(r.cfg.Contract, cfg.Denom); err == nil {
		r.metrics.SetTreasuryBalance(balance.Float64())
	}
	if c.action == "deposit" {
		for _, coin := range c.funds {
			r.metrics.AddDeposit(coin.Amount.Float64())
		}
	}
	if v, ok := resp.Attribute("pruned_records"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			r.metrics.AddPruned(n)
		}
	}
	for _, send := range resp.Messages {
		role := "player"
		switch send.ToAddress {
		case cfg.Treasury:
			role = "treasury"
		case cfg.Owner:
			role = "owner"
		}
		for _, coin := range send.Amount {
			r.metrics.AddPayout(role, coin.Amount.Float64())
		}
	}
}

func (r *Runtime) consumeSequence(sender string, seq uint64, now uint64) error {
	overlay := corestate.NewOverlay(r.db)
	mgr := corestate.NewManager(overlay)
	if err := bank.NewLedger(mgr).UseSequence(sender, seq); err != nil {
		overlay.Discard()
		return err
	}
	if err := mgr.KVPut(blockTimeKey, now); err != nil {
		overlay.Discard()
		return err
	}
	if err := overlay.Commit(); err != nil {
		return err
	}
	r.last = now
	return nil
}

// Query runs a read-only bridge query at the current block time.
func (r *Runtime) Query(ctx context.Context, raw []byte) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, span := r.tracer.Start(ctx, "bridge.query")
	defer span.End()

	overlay := corestate.NewOverlay(r.db)
	defer overlay.Discard()
	mgr := corestate.NewManager(overlay)
	engine := bridge.NewEngine(mgr, bank.NewLedger(mgr))
	engine.SetAddressPrefix(r.cfg.Prefix)
	result, err := engine.QueryJSON(bridge.Env{BlockTime: r.blockTime(), Contract: r.cfg.Contract}, raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, bridge.Code(err))
		return nil, err
	}
	return result, nil
}

// Instantiated reports whether the bridge has a configuration.
func (r *Runtime) Instantiated() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := bridge.NewEngine(corestate.NewManager(r.db), nil).Config()
	if errors.Is(err, bridge.ErrNotInitialised) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Fund mints coins into addr. It backs genesis allocations and the devnet
// faucet; it bypasses the bridge entirely.
func (r *Runtime) Fund(ctx context.Context, addr string, coins []types.Coin) error {
	if _, err := crypto.ValidateAddress(addr, r.cfg.Prefix); err != nil {
		return fmt.Errorf("runtime: fund address: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, span := r.tracer.Start(ctx, "bank.fund", trace.WithAttributes(attribute.String("bank.address", addr)))
	defer span.End()

	overlay := corestate.NewOverlay(r.db)
	ledger := bank.NewLedger(corestate.NewManager(overlay))
	for _, coin := range coins {
		if err := ledger.Credit(addr, coin); err != nil {
			overlay.Discard()
			span.RecordError(err)
			return err
		}
	}
	if err := overlay.Commit(); err != nil {
		return fmt.Errorf("runtime: commit: %w", err)
	}
	r.logger.Info("account funded", slog.String("address", addr), slog.String("coins", fmt.Sprint(coins)))
	return nil
}

// Balance returns addr's committed holdings of denom.
func (r *Runtime) Balance(addr, denom string) (types.Amount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return bank.NewLedger(corestate.NewManager(r.db)).Balance(addr, denom)
}

// Balances lists addr's committed holdings.
func (r *Runtime) Balances(addr string) ([]types.Coin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return bank.NewLedger(corestate.NewManager(r.db)).Balances(addr)
}

// Sequence returns the next envelope sequence expected from addr.
func (r *Runtime) Sequence(addr string) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return bank.NewLedger(corestate.NewManager(r.db)).Sequence(addr)
}
