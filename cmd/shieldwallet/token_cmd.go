package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/shieldwallet/shieldwallet/pkg/auth"
	"github.com/shieldwallet/shieldwallet/pkg/wallet"
)

// runTokenCmd mints an API bearer token bound to a signer address.
func runTokenCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("token", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		secret string
		signer string
	)
	cmd.StringVar(&secret, "secret", "", "Daemon auth secret (REQUIRED)")
	cmd.StringVar(&signer, "signer", "", "Signer address to bind the token to (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if secret == "" || signer == "" {
		fmt.Fprintln(stderr, "Error: --secret and --signer are required")
		return 2
	}

	addr := wallet.NormalizeAddress(signer)
	if err := addr.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	validator := auth.NewValidator(secret)
	token, err := validator.Issue(addr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}
