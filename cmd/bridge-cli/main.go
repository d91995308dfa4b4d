package main

import (
	"fmt"
	"os"
	"strings"
)

const (
	defaultRPC        = "http://127.0.0.1:8645/rpc"
	passphraseEnv     = "BRIDGE_KEYSTORE_PASSPHRASE"
	operatorTokenEnv  = "BRIDGE_OPERATOR_TOKEN"
	rpcEndpointEnvVar = "BRIDGE_RPC_URL"
)

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv(rpcEndpointEnvVar)); v != "" {
		return v
	}
	return defaultRPC
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printUsage()
		return 1
	}
	command, rest := args[0], args[1:]
	switch command {
	case "keygen":
		return runKeygen(rest)
	case "address":
		return runAddress(rest)
	case "sign-withdrawal":
		return runSignWithdrawal(rest)
	case "sign-tx":
		return runSignTx(rest)
	case "query":
		return runQuery(rest)
	case "balance":
		return runBalance(rest)
	case "migrate":
		return runMigrate(rest)
	case "help", "-h", "--help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", command)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Println("Usage: bridge-cli <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  keygen --out <file> [--role <role>] [--light]         create an encrypted key")
	fmt.Println("  address --keystore <file>                              print address and oracle public key")
	fmt.Println("  sign-withdrawal --keystore <oracle> --player <addr> --credits <n> [--tokens <n>]")
	fmt.Println("                  [--chain-id <id>] [--contract <addr>] [--nonce <ts:id>]")
	fmt.Println("                                                         sign a withdrawal claim as the oracle")
	fmt.Println("  sign-tx --keystore <file> --msg <json> [--funds 100ushido] [--sequence <n>] [--submit]")
	fmt.Println("                                                         sign (and optionally submit) an envelope")
	fmt.Println("  query <json>                                           run a bridge query")
	fmt.Println("  balance <addr>                                         show native balances and sequence")
	fmt.Println("  migrate                                                run the migrate hook (needs $" + operatorTokenEnv + ")")
	fmt.Println()
	fmt.Println("Network commands accept --rpc <url> (default $" + rpcEndpointEnvVar + " or " + defaultRPC + ").")
	fmt.Println("Keystore passphrases are read from $" + passphraseEnv + "_<ROLE>, then $" + passphraseEnv + ", or prompted.")
}
