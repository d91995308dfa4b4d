package config

// Bridge holds the instantiate parameters applied on first boot. Amounts are
// decimal strings; underscores and e-notation ("1e6") are accepted.
type Bridge struct {
	Owner            string `toml:"Owner"`
	Oracle           string `toml:"Oracle"`
	OraclePubKey     string `toml:"OraclePubKey"`
	Denom            string `toml:"Denom"`
	RateCredits      string `toml:"RateCredits"`
	RateTokens       string `toml:"RateTokens"`
	FeeBps           uint16 `toml:"FeeBps"`
	Treasury         string `toml:"Treasury"`
	MinDeposit       string `toml:"MinDeposit"`
	PlayerDailyLimit string `toml:"PlayerDailyLimit"`
	GlobalDailyLimit string `toml:"GlobalDailyLimit"`
	CooldownSeconds  uint64 `toml:"CooldownSeconds"`
	MinReserve       string `toml:"MinReserve"`
}

// Enabled reports whether the section carries enough to instantiate.
func (b Bridge) Enabled() bool { return b.Owner != "" }

// Genesis seeds native balances, denominated in Bridge.Denom, before the
// bridge is instantiated.
type Genesis struct {
	Balances map[string]string `toml:"Balances"`
}

// RPC controls the JSON-RPC listener.
type RPC struct {
	RequestsPerMinute int    `toml:"RequestsPerMinute"`
	Burst             int    `toml:"Burst"`
	JWTSecretEnv      string `toml:"JWTSecretEnv"`
	JWTIssuer         string `toml:"JWTIssuer"`
	EnableFaucet      bool   `toml:"EnableFaucet"`
	TrustProxyHeaders bool   `toml:"TrustProxyHeaders"`
	ReadHeaderTimeout int    `toml:"ReadHeaderTimeout"`
	ShutdownTimeout   int    `toml:"ShutdownTimeout"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
}
