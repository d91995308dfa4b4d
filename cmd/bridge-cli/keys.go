package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"creditbridge/cmd/internal/passphrase"
	"creditbridge/crypto"
)

func runKeygen(args []string) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	out := fs.String("out", "bridge.keystore", "keystore file to create")
	light := fs.Bool("light", false, "use light scrypt parameters (development only)")
	prefix := fs.String("prefix", string(crypto.DefaultPrefix), "bech32 address prefix")
	role := fs.String("role", "bridge", "key role used in prompts and passphrase lookup (oracle, owner, player)")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := os.Stat(*out); err == nil {
		fmt.Fprintf(os.Stderr, "Error: %s already exists\n", *out)
		return 1
	}

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: generate key: %v\n", err)
		return 1
	}
	pass, err := passphrase.NewConfirmedSource(passphraseEnv, *role).Get()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	save := crypto.SaveToKeystore
	if *light {
		save = crypto.SaveToKeystoreLight
	}
	if err := save(*out, key, pass); err != nil {
		fmt.Fprintf(os.Stderr, "Error: save keystore: %v\n", err)
		return 1
	}
	printKey(key, crypto.AddressPrefix(*prefix))
	fmt.Printf("Keystore: %s\n", *out)
	return 0
}

func runAddress(args []string) int {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	keystore := fs.String("keystore", "", "keystore file")
	prefix := fs.String("prefix", string(crypto.DefaultPrefix), "bech32 address prefix")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	key, err := loadKey(*keystore, "bridge")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	printKey(key, crypto.AddressPrefix(*prefix))
	return 0
}

func printKey(key *crypto.PrivateKey, prefix crypto.AddressPrefix) {
	pub := key.PubKey()
	fmt.Printf("Address: %s\n", pub.Address(prefix).String())
	fmt.Printf("Public key: %s\n", hex.EncodeToString(pub.Compressed()))
}

func loadKey(path, label string) (*crypto.PrivateKey, error) {
	if path == "" {
		return nil, fmt.Errorf("--keystore is required")
	}
	pass, err := passphrase.NewSource(passphraseEnv, label).Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("load keystore %s: %w", path, err)
	}
	return key, nil
}
