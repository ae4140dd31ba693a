package main

import (
	"context"
	"io"
	"net/url"

	"labledger/core/events"
	"labledger/crypto"
	"labledger/native/escrow"
)

type orderResult struct {
	OrderID                  string `json:"orderId"`
	ServiceID                string `json:"serviceId"`
	CustomerSubstrateAddress string `json:"customerSubstrateAddress"`
	SellerSubstrateAddress   string `json:"sellerSubstrateAddress"`
	CustomerAddress          string `json:"customerAddress"`
	SellerAddress            string `json:"sellerAddress"`
	DNASampleTrackingID      string `json:"dnaSampleTrackingId"`
	TestingPrice             string `json:"testingPrice"`
	QCPrice                  string `json:"qcPrice"`
	AmountPaid               string `json:"amountPaid"`
	Status                   string `json:"status"`
	CreatedAt                int64  `json:"createdAt"`
	UpdatedAt                int64  `json:"updatedAt"`
}

func orderPath(id [32]byte, action string) string {
	path := "/v1/orders/" + url.PathEscape(events.FormatHash(id))
	if action != "" {
		path += "/" + action
	}
	return path
}

func runGetOrder(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("get-order", stderr)
	opts := addClientFlags(fs)
	var idStr string
	fs.StringVar(&idStr, "id", "", "0x-prefixed order id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	id, err := crypto.ParseHash32(idStr)
	if err != nil {
		return printError(stderr, "--id: %v", err)
	}
	var order orderResult
	if err := newClient(opts).call(context.Background(), "GET", orderPath(id, ""), nil, &order, false); err != nil {
		return handleCallError(stderr, err)
	}
	writeResult(stdout, order)
	return 0
}

func runPayOrder(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("pay-order", stderr)
	opts := addClientFlags(fs)
	var (
		idStr     string
		body      payOrderRequest
		skipAllow bool
	)
	fs.StringVar(&idStr, "id", "", "0x-prefixed order id")
	fs.StringVar(&body.ServiceID, "service-id", "", "0x-prefixed service id")
	fs.StringVar(&body.CustomerSubstrateAddress, "customer-substrate", "", "customer substrate account")
	fs.StringVar(&body.SellerSubstrateAddress, "seller-substrate", "", "seller substrate account")
	fs.StringVar(&body.SellerAddress, "seller", "", "seller ledger address")
	fs.StringVar(&body.DNASampleTrackingID, "tracking-id", "", "DNA sample tracking id")
	fs.StringVar(&body.TestingPrice, "testing-price", "", "testing price in base units")
	fs.StringVar(&body.QCPrice, "qc-price", "0", "QC price in base units")
	fs.StringVar(&body.Amount, "amount", "", "amount to pay in base units")
	fs.BoolVar(&skipAllow, "skip-approve", false, "do not approve the escrow custody account first")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	id, err := crypto.ParseHash32(idStr)
	if err != nil {
		return printError(stderr, "--id: %v", err)
	}
	if opts.as == "" {
		return printError(stderr, "--as is required")
	}
	if body.SellerAddress == "" {
		return printError(stderr, "--seller is required")
	}
	if body.Amount == "" {
		return printError(stderr, "--amount is required")
	}
	if body.TestingPrice == "" {
		return printError(stderr, "--testing-price is required")
	}
	if body.ServiceID == "" {
		body.ServiceID = events.FormatHash([32]byte{})
	}
	body.CustomerAddress = opts.as

	ctx := context.Background()
	c := newClient(opts)
	if !skipAllow {
		approval := targetRequest{Spender: events.FormatAddress(escrow.CustodyAddress), Amount: body.Amount}
		if err := c.call(ctx, "POST", "/v1/token/approve", approval, nil, true); err != nil {
			return handleCallError(stderr, err)
		}
	}
	var order orderResult
	if err := c.call(ctx, "POST", orderPath(id, "pay"), body, &order, true); err != nil {
		return handleCallError(stderr, err)
	}
	writeResult(stdout, order)
	return 0
}

func runAdminOrder(action string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(action+"-order", stderr)
	opts := addClientFlags(fs)
	var idStr string
	fs.StringVar(&idStr, "id", "", "0x-prefixed order id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	id, err := crypto.ParseHash32(idStr)
	if err != nil {
		return printError(stderr, "--id: %v", err)
	}
	if opts.as == "" && opts.token == "" {
		return printError(stderr, "--as is required")
	}
	var order orderResult
	if err := newClient(opts).call(context.Background(), "POST", orderPath(id, action), nil, &order, true); err != nil {
		return handleCallError(stderr, err)
	}
	writeResult(stdout, order)
	return 0
}

type payOrderRequest struct {
	ServiceID                string `json:"serviceId"`
	CustomerSubstrateAddress string `json:"customerSubstrateAddress"`
	SellerSubstrateAddress   string `json:"sellerSubstrateAddress"`
	CustomerAddress          string `json:"customerAddress"`
	SellerAddress            string `json:"sellerAddress"`
	DNASampleTrackingID      string `json:"dnaSampleTrackingId"`
	TestingPrice             string `json:"testingPrice"`
	QCPrice                  string `json:"qcPrice"`
	Amount                   string `json:"amount"`
}

type targetRequest struct {
	To      string `json:"to,omitempty"`
	Spender string `json:"spender,omitempty"`
	Amount  string `json:"amount"`
}
