package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
)

func runQuery(args []string) int {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	endpoint := fs.String("rpc", defaultRPCEndpoint(), "bridge RPC endpoint")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, `Usage: bridge-cli query '{"config":{}}'`)
		return 1
	}
	raw := strings.TrimSpace(fs.Arg(0))
	if !json.Valid([]byte(raw)) {
		fmt.Fprintln(os.Stderr, "Error: query must be valid JSON")
		return 1
	}
	result, err := newRPCClient(*endpoint, "").call("bridge_query", json.RawMessage(raw))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	printJSON(result)
	return 0
}

func runBalance(args []string) int {
	fs := flag.NewFlagSet("balance", flag.ContinueOnError)
	endpoint := fs.String("rpc", defaultRPCEndpoint(), "bridge RPC endpoint")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: bridge-cli balance <address>")
		return 1
	}
	result, err := newRPCClient(*endpoint, "").call("bridge_balance", strings.TrimSpace(fs.Arg(0)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	printJSON(result)
	return 0
}

func runMigrate(args []string) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	endpoint := fs.String("rpc", defaultRPCEndpoint(), "bridge RPC endpoint")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	token := strings.TrimSpace(os.Getenv(operatorTokenEnv))
	if token == "" {
		fmt.Fprintf(os.Stderr, "Error: %s must hold an operator token with the bridge:admin scope\n", operatorTokenEnv)
		return 1
	}
	result, err := newRPCClient(*endpoint, token).call("bridge_migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	printJSON(result)
	return 0
}
