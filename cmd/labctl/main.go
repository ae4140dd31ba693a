package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "token":
		return runToken(args[1:], stdout, stderr)
	case "get-request":
		return runGetRequest(args[1:], stdout, stderr)
	case "get-order":
		return runGetOrder(args[1:], stdout, stderr)
	case "pay-order":
		return runPayOrder(args[1:], stdout, stderr)
	case "fulfill-order":
		return runAdminOrder("fulfill", args[1:], stdout, stderr)
	case "refund-order":
		return runAdminOrder("refund", args[1:], stdout, stderr)
	case "seed":
		return runSeed(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return `Usage: labctl <command> [flags]

Commands:
  token          sign an API bearer token for --as
  get-request    show a request by --hash
  get-order      show an escrow order by --id
  pay-order      approve and pay into an escrow order
  fulfill-order  release a paid order to the seller (escrow admin)
  refund-order   return an order's payment to the customer (escrow admin)
  seed           approve and create a batch of dummy requests

Common flags:
  --endpoint  API base URL (default $LABCTL_ENDPOINT or http://127.0.0.1:8080)
  --as        caller address used as the token subject
  --token     pre-signed bearer token; otherwise one is signed with $LABLEDGER_API_SECRET`
}

func printError(w io.Writer, format string, args ...interface{}) int {
	fmt.Fprintf(w, "Error: "+format+"\n", args...)
	return 1
}
