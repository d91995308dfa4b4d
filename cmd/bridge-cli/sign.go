package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"creditbridge/core/types"
	"creditbridge/crypto"
	"creditbridge/native/bridge"
)

// newNonce builds a "<unix-ts>:<random>" withdrawal nonce.
func newNonce(now time.Time) string {
	return strconv.FormatInt(now.Unix(), 10) + ":" + uuid.NewString()
}

// parseCoins accepts a comma separated list such as "100ushido,5uatom".
func parseCoins(s string) ([]types.Coin, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var coins []types.Coin
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		split := strings.IndexFunc(part, func(r rune) bool { return r < '0' || r > '9' })
		if split <= 0 {
			return nil, fmt.Errorf("invalid coin %q", part)
		}
		amount, err := types.ParseAmount(part[:split])
		if err != nil {
			return nil, fmt.Errorf("invalid coin %q: %w", part, err)
		}
		denom := part[split:]
		if denom[0] < 'a' || denom[0] > 'z' {
			return nil, fmt.Errorf("invalid coin %q: denom must start with a lower-case letter", part)
		}
		coin := types.Coin{Denom: denom, Amount: amount}
		if err := coin.Validate(); err != nil {
			return nil, err
		}
		coins = append(coins, coin)
	}
	return coins, nil
}

// signWithdrawal fills in the oracle signature for msg.
func signWithdrawal(key *crypto.PrivateKey, chainID, contract, player string, msg *bridge.WithdrawMsg) error {
	digest := bridge.WithdrawalDigest(chainID, contract, msg.Nonce, player, msg.CreditAmount, msg.TokenAmount)
	sig, err := bridge.SignWithdrawal(digest, key.PrivateKey)
	if err != nil {
		return err
	}
	msg.Signature = sig
	return nil
}

func runSignWithdrawal(args []string) int {
	fs := flag.NewFlagSet("sign-withdrawal", flag.ContinueOnError)
	keystore := fs.String("keystore", "", "oracle keystore file")
	player := fs.String("player", "", "player address the claim is issued to")
	credits := fs.String("credits", "", "credit amount")
	tokens := fs.String("tokens", "", "net token amount (quoted from the node when omitted)")
	chainID := fs.String("chain-id", "", "chain id (read from the node when omitted)")
	contract := fs.String("contract", "", "bridge contract address (read from the node when omitted)")
	nonce := fs.String("nonce", "", "claim nonce (generated when omitted)")
	endpoint := fs.String("rpc", defaultRPCEndpoint(), "bridge RPC endpoint")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *player == "" || *credits == "" {
		fmt.Fprintln(os.Stderr, "Error: --player and --credits are required")
		return 1
	}
	if _, err := crypto.DecodeAddress(*player); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid player address: %v\n", err)
		return 1
	}
	creditAmount, err := types.ParseAmount(*credits)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid credits: %v\n", err)
		return 1
	}

	client := newRPCClient(*endpoint, "")
	if *chainID == "" || *contract == "" {
		st, err := client.status()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: fetch node status: %v\n", err)
			return 1
		}
		if *chainID == "" {
			*chainID = st.ChainID
		}
		if *contract == "" {
			*contract = st.Contract
		}
	}

	var tokenAmount types.Amount
	if *tokens != "" {
		if tokenAmount, err = types.ParseAmount(*tokens); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid tokens: %v\n", err)
			return 1
		}
	} else {
		query, _ := json.Marshal(bridge.QueryMsg{ConvertCreditsToTokens: &bridge.CreditsToTokensQuery{CreditAmount: creditAmount}})
		raw, err := client.call("bridge_query", json.RawMessage(query))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: quote withdrawal: %v\n", err)
			return 1
		}
		var conv bridge.Conversion
		if err := json.Unmarshal(raw, &conv); err != nil {
			fmt.Fprintf(os.Stderr, "Error: decode quote: %v\n", err)
			return 1
		}
		tokenAmount = conv.TokenAmount
	}

	if *nonce == "" {
		*nonce = newNonce(time.Now())
	} else if _, err := bridge.ParseNonceTimestamp(*nonce); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid nonce: %v\n", err)
		return 1
	}

	key, err := loadKey(*keystore, "oracle")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	msg := bridge.WithdrawMsg{Nonce: *nonce, CreditAmount: creditAmount, TokenAmount: tokenAmount}
	if err := signWithdrawal(key, *chainID, *contract, *player, &msg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: sign withdrawal: %v\n", err)
		return 1
	}
	out, _ := json.Marshal(bridge.ExecuteMsg{Withdraw: &msg})
	printJSON(out)
	return 0
}

// buildEnvelope validates msg and signs it for the given sequence.
func buildEnvelope(key *crypto.PrivateKey, chainID, contract string, sequence uint64, msg []byte, funds []types.Coin) (*types.Envelope, error) {
	if _, err := bridge.ParseExecuteMsg(msg); err != nil {
		return nil, fmt.Errorf("invalid execute message: %w", err)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, msg); err != nil {
		return nil, err
	}
	env := &types.Envelope{
		ChainID:  chainID,
		Contract: contract,
		Sequence: sequence,
		Msg:      json.RawMessage(compact.Bytes()),
		Funds:    funds,
	}
	if err := env.Sign(key.PrivateKey); err != nil {
		return nil, err
	}
	return env, nil
}

func runSignTx(args []string) int {
	fs := flag.NewFlagSet("sign-tx", flag.ContinueOnError)
	keystore := fs.String("keystore", "", "sender keystore file")
	msgArg := fs.String("msg", "", "execute message JSON, or @file to read it from disk")
	fundsArg := fs.String("funds", "", "attached funds, e.g. 100000ushido")
	sequence := fs.Int64("sequence", -1, "envelope sequence (fetched from the node when negative)")
	chainID := fs.String("chain-id", "", "chain id (read from the node when omitted)")
	contract := fs.String("contract", "", "bridge contract address (read from the node when omitted)")
	prefix := fs.String("prefix", string(crypto.DefaultPrefix), "bech32 address prefix")
	submit := fs.Bool("submit", false, "submit the envelope with bridge_execute")
	endpoint := fs.String("rpc", defaultRPCEndpoint(), "bridge RPC endpoint")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *msgArg == "" {
		fmt.Fprintln(os.Stderr, "Error: --msg is required")
		return 1
	}
	msg := []byte(*msgArg)
	if strings.HasPrefix(*msgArg, "@") {
		data, err := os.ReadFile(strings.TrimPrefix(*msgArg, "@"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: read message: %v\n", err)
			return 1
		}
		msg = data
	}
	funds, err := parseCoins(*fundsArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	key, err := loadKey(*keystore, "bridge")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	sender := key.PubKey().Address(crypto.AddressPrefix(*prefix)).String()

	client := newRPCClient(*endpoint, "")
	if *chainID == "" || *contract == "" {
		st, err := client.status()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: fetch node status: %v\n", err)
			return 1
		}
		if *chainID == "" {
			*chainID = st.ChainID
		}
		if *contract == "" {
			*contract = st.Contract
		}
	}
	seq := uint64(*sequence)
	if *sequence < 0 {
		raw, err := client.call("bridge_sequence", sender)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: fetch sequence: %v\n", err)
			return 1
		}
		var res struct {
			Sequence uint64 `json:"sequence"`
		}
		if err := json.Unmarshal(raw, &res); err != nil {
			fmt.Fprintf(os.Stderr, "Error: decode sequence: %v\n", err)
			return 1
		}
		seq = res.Sequence
	}

	env, err := buildEnvelope(key, *chainID, *contract, seq, msg, funds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if !*submit {
		out, _ := json.Marshal(env)
		printJSON(out)
		return 0
	}
	receipt, err := client.call("bridge_execute", env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	printJSON(receipt)
	return 0
}
