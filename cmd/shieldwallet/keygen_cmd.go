package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/shieldwallet/shieldwallet/pkg/signing"
)

// runKeygenCmd generates an owner key pair and prints it. The seed is the
// secret; everything else derives from it.
func runKeygenCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("keygen", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var jsonOutput bool
	cmd.BoolVar(&jsonOutput, "json", false, "Output as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	signer, err := signing.NewSigner()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if jsonOutput {
		_ = json.NewEncoder(stdout).Encode(map[string]string{
			"address":    string(signer.Address()),
			"public_key": signer.PublicKey(),
			"seed":       signer.Seed(),
		})
		return 0
	}

	fmt.Fprintf(stdout, "Address:    %s\n", signer.Address())
	fmt.Fprintf(stdout, "Public key: %s\n", signer.PublicKey())
	fmt.Fprintf(stdout, "Seed:       %s\n", signer.Seed())
	fmt.Fprintln(stdout, "")
	fmt.Fprintln(stdout, "Keep the seed secret. Anyone holding it can approve executions as this owner.")
	return 0
}
