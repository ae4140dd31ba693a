package main

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"labledger/core/events"
	"labledger/crypto"
	"labledger/native/requests"
)

type requestResult struct {
	Hash            string `json:"hash"`
	Requester       string `json:"requester"`
	LabAddress      string `json:"labAddress"`
	Country         string `json:"country"`
	City            string `json:"city"`
	ServiceCategory string `json:"serviceCategory"`
	StakingAmount   string `json:"stakingAmount"`
	Status          string `json:"status"`
	UnstakedAt      int64  `json:"unstakedAt"`
	CreatedAt       int64  `json:"createdAt"`
}

type createRequestBody struct {
	Country         string `json:"country"`
	City            string `json:"city"`
	ServiceCategory string `json:"serviceCategory"`
	StakingAmount   string `json:"stakingAmount"`
}

func runGetRequest(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("get-request", stderr)
	opts := addClientFlags(fs)
	var hashStr string
	fs.StringVar(&hashStr, "hash", "", "0x-prefixed request hash")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	hash, err := crypto.ParseHash32(hashStr)
	if err != nil {
		return printError(stderr, "--hash: %v", err)
	}
	var req requestResult
	path := "/v1/requests/" + url.PathEscape(events.FormatHash(hash))
	if err := newClient(opts).call(context.Background(), "GET", path, nil, &req, false); err != nil {
		return handleCallError(stderr, err)
	}
	writeResult(stdout, req)
	return 0
}

// seedEntry describes one batch of dummy requests in a seed fixture.
type seedEntry struct {
	Country  string `yaml:"country"`
	City     string `yaml:"city"`
	Category string `yaml:"category"`
	Stake    string `yaml:"stake"`
	Count    int    `yaml:"count"`
}

type seedFixture struct {
	Requests []seedEntry `yaml:"requests"`
}

func loadSeedFixture(path string) ([]seedEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	var fixture seedFixture
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&fixture); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(fixture.Requests) == 0 {
		return nil, fmt.Errorf("%s lists no requests", path)
	}
	for i := range fixture.Requests {
		if fixture.Requests[i].Count == 0 {
			fixture.Requests[i].Count = 1
		}
	}
	return fixture.Requests, nil
}

// runSeed approves the registry for the combined stake and then opens the
// requested batches for the caller, printing each new request hash.
func runSeed(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("seed", stderr)
	opts := addClientFlags(fs)
	var (
		file  string
		entry seedEntry
	)
	fs.StringVar(&file, "file", "", "YAML fixture listing request batches")
	fs.IntVar(&entry.Count, "count", 5, "number of requests to create")
	fs.StringVar(&entry.Stake, "stake", "10", "stake per request in base units")
	fs.StringVar(&entry.Country, "country", "Indonesia", "request country")
	fs.StringVar(&entry.City, "city", "Jakarta", "request city")
	fs.StringVar(&entry.Category, "category", "Whole-Genome Sequencing", "service category")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if opts.as == "" && opts.token == "" {
		return printError(stderr, "--as is required")
	}
	entries := []seedEntry{entry}
	if file != "" {
		loaded, err := loadSeedFixture(file)
		if err != nil {
			return printError(stderr, "--file: %v", err)
		}
		entries = loaded
	}

	total := new(big.Int)
	bodies := make([]createRequestBody, 0)
	for _, e := range entries {
		if e.Count <= 0 {
			return printError(stderr, "--count must be positive")
		}
		stake, ok := new(big.Int).SetString(strings.TrimSpace(e.Stake), 10)
		if !ok || stake.Sign() < 0 {
			return printError(stderr, "--stake must be a non-negative integer")
		}
		total.Add(total, new(big.Int).Mul(stake, big.NewInt(int64(e.Count))))
		for i := 0; i < e.Count; i++ {
			bodies = append(bodies, createRequestBody{
				Country:         e.Country,
				City:            e.City,
				ServiceCategory: e.Category,
				StakingAmount:   stake.String(),
			})
		}
	}

	ctx := context.Background()
	c := newClient(opts)
	approval := targetRequest{Spender: events.FormatAddress(requests.RegistryCustody), Amount: total.String()}
	if err := c.call(ctx, "POST", "/v1/token/approve", approval, nil, true); err != nil {
		return handleCallError(stderr, err)
	}
	for i, body := range bodies {
		var created requestResult
		if err := c.call(ctx, "POST", "/v1/requests", body, &created, true); err != nil {
			fmt.Fprintf(stderr, "created %d of %d requests\n", i, len(bodies))
			return handleCallError(stderr, err)
		}
		fmt.Fprintln(stdout, created.Hash)
	}
	return 0
}
