// Command shieldwallet is the operator CLI: key generation, execution id
// derivation, approval signing, token minting and daemon health checks.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run dispatches subcommands; split out for tests.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "keygen":
		return runKeygenCmd(args[2:], stdout, stderr)
	case "id":
		return runIDCmd(args[2:], stdout, stderr)
	case "sign":
		return runSignCmd(args[2:], stdout, stderr)
	case "token":
		return runTokenCmd(args[2:], stdout, stderr)
	case "health":
		return runHealthCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "shieldwallet - multi-owner wallet operator CLI")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  shieldwallet keygen                 Generate an owner key pair")
	fmt.Fprintln(w, "  shieldwallet id --payload <file>    Derive an execution id from a proposal payload")
	fmt.Fprintln(w, "  shieldwallet sign --seed <hex> --execution-id <id>")
	fmt.Fprintln(w, "                                      Produce an approval signature")
	fmt.Fprintln(w, "  shieldwallet token --secret <s> --signer <addr>")
	fmt.Fprintln(w, "                                      Mint an API bearer token")
	fmt.Fprintln(w, "  shieldwallet health --url <base>    Check coordinator daemon health")
	fmt.Fprintln(w, "")
}
