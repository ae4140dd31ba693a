package main

import (
	"fmt"
	"io"

	"labledger/crypto"
)

func runToken(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token", stderr)
	opts := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if opts.as == "" {
		return printError(stderr, "--as is required")
	}
	if _, err := crypto.ParseAddress(opts.as); err != nil {
		return printError(stderr, "--as: %v", err)
	}
	if opts.ttl <= 0 {
		return printError(stderr, "--ttl must be positive")
	}
	opts.token = ""
	token, err := opts.bearer()
	if err != nil {
		return printError(stderr, "%v", err)
	}
	fmt.Fprintln(stdout, token)
	return 0
}
