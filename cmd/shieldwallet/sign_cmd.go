package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/shieldwallet/shieldwallet/pkg/signing"
)

// runSignCmd produces an approval over an execution id. The output JSON is
// the exact body POST .../approvals accepts.
func runSignCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("sign", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		seedHex     string
		executionID string
	)
	cmd.StringVar(&seedHex, "seed", "", "Hex seed of the owner key (REQUIRED)")
	cmd.StringVar(&executionID, "execution-id", "", "Execution id to approve (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if seedHex == "" || executionID == "" {
		fmt.Fprintln(stderr, "Error: --seed and --execution-id are required")
		return 2
	}

	signer, err := signing.NewSignerFromSeed(seedHex)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	approval, err := signer.Approve(executionID)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	_ = json.NewEncoder(stdout).Encode(map[string]string{
		"signer":     string(approval.Signer),
		"public_key": approval.PublicKey,
		"signature":  approval.Signature,
	})
	return 0
}
