package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/shieldwallet/shieldwallet/pkg/engine"
	"github.com/shieldwallet/shieldwallet/pkg/wallet"
)

// proposalPayload is the JSON shape the id command reads. It mirrors the
// tuple the engine hashes, so the printed id matches what the engine will
// assign when the same proposal lands.
type proposalPayload struct {
	Mode          engine.Mode   `json:"mode"`
	Calls         []engine.Call `json:"calls"`
	ThresholdType string        `json:"threshold_type"`
	ProposedAt    int64         `json:"proposed_at"`
}

// runIDCmd derives the execution id of a proposal payload file.
func runIDCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("id", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var payloadPath string
	cmd.StringVar(&payloadPath, "payload", "", "Path to proposal payload JSON (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if payloadPath == "" {
		fmt.Fprintln(stderr, "Error: --payload is required")
		return 2
	}

	data, err := os.ReadFile(payloadPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	var payload proposalPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		fmt.Fprintf(stderr, "Error: invalid payload: %v\n", err)
		return 1
	}

	if err := payload.Mode.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	tt, err := wallet.ParseThresholdType(payload.ThresholdType)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	id, err := engine.DeriveExecutionID(payload.Mode, payload.Calls, tt, payload.ProposedAt)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, id)
	return 0
}
