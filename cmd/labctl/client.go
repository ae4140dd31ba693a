package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"labledger/cmd/internal/secret"
	"labledger/rpc/middleware"
)

const (
	endpointEnv     = "LABCTL_ENDPOINT"
	secretEnv       = "LABLEDGER_API_SECRET"
	defaultEndpoint = "http://127.0.0.1:8080"
	requestTimeout  = 15 * time.Second
)

// clientOptions holds the flags shared by every command that talks to the
// API.
type clientOptions struct {
	endpoint string
	as       string
	token    string
	issuer   string
	audience string
	ttl      time.Duration
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage of labctl %s:\n", name)
		fs.PrintDefaults()
	}
	return fs
}

func addClientFlags(fs *flag.FlagSet) *clientOptions {
	opts := &clientOptions{}
	endpoint := strings.TrimSpace(os.Getenv(endpointEnv))
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	fs.StringVar(&opts.endpoint, "endpoint", endpoint, "API base URL")
	fs.StringVar(&opts.as, "as", "", "caller address (0x hex or lab bech32)")
	fs.StringVar(&opts.token, "token", "", "pre-signed bearer token")
	fs.StringVar(&opts.issuer, "issuer", "labledger", "token issuer")
	fs.StringVar(&opts.audience, "audience", "labledger-api", "token audience")
	fs.DurationVar(&opts.ttl, "ttl", 15*time.Minute, "lifetime of signed tokens")
	return opts
}

// bearer returns the token for authenticated calls, signing one with the
// API secret when none was supplied.
func (o *clientOptions) bearer() (string, error) {
	if token := strings.TrimSpace(o.token); token != "" {
		return token, nil
	}
	if strings.TrimSpace(o.as) == "" {
		return "", errors.New("--as is required to sign a token")
	}
	key, err := secret.NewSource(secretEnv, "API signing secret: ").Get()
	if err != nil {
		return "", err
	}
	return middleware.IssueToken(key, o.issuer, o.audience, o.as, o.ttl)
}

// apiError is the decoded error envelope returned by the node.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

type client struct {
	opts  *clientOptions
	http  *http.Client
	token string
}

func newClient(opts *clientOptions) *client {
	return &client{
		opts: opts,
		http: &http.Client{Timeout: requestTimeout},
	}
}

func (c *client) authorization() (string, error) {
	if c.token != "" {
		return c.token, nil
	}
	token, err := c.opts.bearer()
	if err != nil {
		return "", err
	}
	c.token = token
	return token, nil
}

// call sends a JSON request and decodes the response into out. Authenticated
// calls carry a bearer token for the --as caller.
func (c *client) call(ctx context.Context, method, path string, body, out interface{}, auth bool) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	url := strings.TrimRight(c.opts.endpoint, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		token, err := c.authorization()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var envelope middleware.ErrorBody
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error.Code == "" {
			return &apiError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode), Message: "unexpected response"}
		}
		return &apiError{Status: resp.StatusCode, Code: envelope.Error.Code, Message: envelope.Error.Message}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func writeResult(w io.Writer, v interface{}) {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "%v\n", v)
		return
	}
	fmt.Fprintln(w, string(encoded))
}

func handleCallError(w io.Writer, err error) int {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(w, "API error %s\n", apiErr.Error())
		return 1
	}
	fmt.Fprintf(w, "Request failed: %v\n", err)
	return 1
}
