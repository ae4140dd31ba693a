package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"labledger/core"
	"labledger/core/events"
	"labledger/native/escrow"
	"labledger/native/requests"
	"labledger/rpc/middleware"
	"labledger/storage"
)

const (
	testSecret   = "rpc-test-secret"
	testIssuer   = "rpc-tests"
	testAudience = "unit-tests"
)

var (
	daoAdmin    = [20]byte{0xDA}
	escrowAdmin = [20]byte{0xE5}
	requester   = [20]byte{0x01}
	lab         = [20]byte{0x1A}
)

type testEnv struct {
	t      *testing.T
	node   *core.Node
	server *httptest.Server
	now    int64
}

func newTestEnv(t *testing.T, cfg core.Config) *testEnv {
	t.Helper()
	cfg.DAOAdmin = daoAdmin
	cfg.EscrowAdmin = escrowAdmin
	node, err := core.NewNode(storage.NewMemDB(), cfg, nil)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	env := &testEnv{t: t, node: node, now: 1_700_000_000}
	node.SetNowFunc(func() int64 { return env.now })
	if _, err := node.ApplyGenesis([]core.GenesisAllocation{{Address: requester, Amount: big.NewInt(1_000)}}); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	srv, err := NewServer(node, ServerConfig{
		Auth: middleware.AuthConfig{
			Enabled:    true,
			HMACSecret: testSecret,
			Issuer:     testIssuer,
			Audience:   testAudience,
		},
	}, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	env.server = httptest.NewServer(srv.Handler())
	t.Cleanup(env.server.Close)
	return env
}

func addrHex(addr [20]byte) string { return "0x" + hex.EncodeToString(addr[:]) }

func hashHex(h [32]byte) string { return "0x" + hex.EncodeToString(h[:]) }

func (e *testEnv) do(method, path string, caller *[20]byte, body interface{}) (int, []byte) {
	e.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		token, err := middleware.IssueToken(testSecret, testIssuer, testAudience, addrHex(*caller), time.Minute)
		if err != nil {
			e.t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := e.server.Client().Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(res.Body)
	return res.StatusCode, buf.Bytes()
}

func (e *testEnv) expect(status int, method, path string, caller *[20]byte, body interface{}, out interface{}) {
	e.t.Helper()
	code, data := e.do(method, path, caller, body)
	if code != status {
		e.t.Fatalf("%s %s: expected %d, got %d: %s", method, path, status, code, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			e.t.Fatalf("decode %s: %v", data, err)
		}
	}
}

func (e *testEnv) expectError(status int, reason, method, path string, caller *[20]byte, body interface{}) {
	e.t.Helper()
	var envelope middleware.ErrorBody
	e.expect(status, method, path, caller, body, &envelope)
	if envelope.Error.Code != reason {
		e.t.Fatalf("%s %s: expected reason %s, got %s (%s)", method, path, reason, envelope.Error.Code, envelope.Error.Message)
	}
}

func (e *testEnv) createRequest(stake string) requestJSON {
	e.t.Helper()
	e.expect(http.StatusOK, http.MethodPost, "/v1/token/approve", &requester,
		map[string]string{"spender": addrHex(requests.RegistryCustody), "amount": stake}, nil)
	var created requestJSON
	e.expect(http.StatusCreated, http.MethodPost, "/v1/requests", &requester, map[string]string{
		"country":         "Indonesia",
		"city":            "Jakarta",
		"serviceCategory": "Whole-Genome Sequencing",
		"stakingAmount":   stake,
	}, &created)
	return created
}

func claimBody() map[string]string {
	return map[string]string{
		"serviceId":    hashHex([32]byte{0x5E}),
		"testingPrice": "10",
		"qcPrice":      "5",
	}
}

func TestRequestLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, core.Config{})
	created := env.createRequest("20")
	if created.Status != "OPEN" || created.StakingAmount != "20" {
		t.Fatalf("unexpected request %+v", created)
	}

	claimPath := "/v1/requests/" + created.Hash + "/claim"
	env.expectError(http.StatusForbidden, "NotCurated", http.MethodPost, claimPath, &lab, claimBody())
	env.expectError(http.StatusForbidden, "NotAuthorized", http.MethodPost, "/v1/curation/"+addrHex(lab), &lab, nil)
	env.expect(http.StatusOK, http.MethodPost, "/v1/curation/"+addrHex(lab), &daoAdmin, nil, nil)

	var offer offerJSON
	env.expect(http.StatusOK, http.MethodPost, claimPath, &lab, claimBody(), &offer)
	if offer.TestingPrice != "10" || offer.QCPrice != "5" {
		t.Fatalf("unexpected offer %+v", offer)
	}
	env.expectError(http.StatusConflict, "AlreadyClaimed", http.MethodPost, claimPath, &lab, claimBody())

	orderID := hashHex([32]byte{0x0D})
	processBody := map[string]string{
		"orderId":                  orderID,
		"customerSubstrateAddress": "5EBs6czjmUy31iawezsude3vudFVfi9gMv6kAHjNeBzzGgvH",
		"sellerSubstrateAddress":   "5ESGhRuAhECXu96Pz9L8pwEEd1AeVhStXX67TWE1zHRuvJNU",
		"customerAddress":          addrHex(requester),
		"sellerAddress":            addrHex(lab),
		"dnaSampleTrackingId":      "Y9JCOABLP16GKHQ14RY9J",
	}
	var processed requestJSON
	env.expect(http.StatusOK, http.MethodPost, "/v1/requests/"+created.Hash+"/process", &requester, processBody, &processed)
	if processed.Status != "PROCESSED" {
		t.Fatalf("unexpected status %s", processed.Status)
	}

	var order orderJSON
	env.expect(http.StatusOK, http.MethodGet, "/v1/orders/"+orderID, nil, nil, &order)
	if order.Status != "PAID" || order.AmountPaid != "15" || order.DNASampleTrackingID != "Y9JCOABLP16GKHQ14RY9J" {
		t.Fatalf("unexpected order %+v", order)
	}

	env.expectError(http.StatusForbidden, "NotAuthorized", http.MethodPost, "/v1/orders/"+orderID+"/fulfill", &lab, nil)
	env.expect(http.StatusOK, http.MethodPost, "/v1/orders/"+orderID+"/fulfill", &escrowAdmin, nil, &order)
	if order.Status != "FULFILLED" {
		t.Fatalf("unexpected order status %s", order.Status)
	}
	env.expectError(http.StatusConflict, "InvalidState", http.MethodPost, "/v1/orders/"+orderID+"/refund", &escrowAdmin, nil)

	var balance balanceJSON
	env.expect(http.StatusOK, http.MethodGet, "/v1/token/balance/"+addrHex(lab), nil, nil, &balance)
	if balance.Balance != "15" {
		t.Fatalf("unexpected lab balance %s", balance.Balance)
	}
	env.expect(http.StatusOK, http.MethodGet, "/v1/token/balance/"+addrHex(requester), nil, nil, &balance)
	if balance.Balance != "985" {
		t.Fatalf("unexpected requester balance %s", balance.Balance)
	}
}

func TestUnstakeAndRetrieveOverHTTP(t *testing.T) {
	env := newTestEnv(t, core.Config{})
	created := env.createRequest("10")
	base := "/v1/requests/" + created.Hash

	env.expectError(http.StatusForbidden, "NotAuthorized", http.MethodPost, base+"/unstake", &lab, nil)
	var unstaked requestJSON
	env.expect(http.StatusOK, http.MethodPost, base+"/unstake", &requester, nil, &unstaked)
	if unstaked.Status != "UNSTAKED" || unstaked.UnstakedAt != env.now {
		t.Fatalf("unexpected request %+v", unstaked)
	}
	env.expectError(http.StatusTooEarly, "CooldownNotElapsed", http.MethodPost, base+"/retrieve", &requester, nil)

	env.now += int64((144 * time.Hour).Seconds())
	var retrieved requestJSON
	env.expect(http.StatusOK, http.MethodPost, base+"/retrieve", &requester, nil, &retrieved)
	if retrieved.StakingAmount != "0" {
		t.Fatalf("expected zeroed stake, got %s", retrieved.StakingAmount)
	}
	env.expectError(http.StatusConflict, "NothingToRetrieve", http.MethodPost, base+"/retrieve", &requester, nil)
}

func TestReadEndpoints(t *testing.T) {
	env := newTestEnv(t, core.Config{})
	created := env.createRequest("10")

	var list hashListJSON
	env.expect(http.StatusOK, http.MethodGet, "/v1/requests", nil, nil, &list)
	if len(list.Hashes) != 1 || list.Hashes[0] != created.Hash {
		t.Fatalf("unexpected list %+v", list)
	}
	env.expect(http.StatusOK, http.MethodGet, "/v1/requests/country/Indonesia/city/Jakarta", nil, nil, &list)
	if len(list.Hashes) != 1 {
		t.Fatalf("unexpected city list %+v", list)
	}
	env.expect(http.StatusOK, http.MethodGet, "/v1/requests/country/Malaysia", nil, nil, &list)
	if len(list.Hashes) != 0 {
		t.Fatalf("expected empty list, got %+v", list)
	}
	env.expect(http.StatusOK, http.MethodGet, "/v1/requests/requester/"+addrHex(requester), nil, nil, &list)
	if len(list.Hashes) != 1 {
		t.Fatalf("unexpected requester list %+v", list)
	}
	var count countJSON
	env.expect(http.StatusOK, http.MethodGet, "/v1/requests/count", nil, nil, &count)
	if count.Count != 1 {
		t.Fatalf("unexpected count %d", count.Count)
	}
	var fetched requestJSON
	env.expect(http.StatusOK, http.MethodGet, "/v1/requests/"+created.Hash, nil, nil, &fetched)
	if fetched.Requester != events.FormatAddress(requester) {
		t.Fatalf("unexpected requester %s", fetched.Requester)
	}
	env.expectError(http.StatusNotFound, "NotFound", http.MethodGet, "/v1/requests/"+created.Hash+"/offer", nil, nil)
	env.expectError(http.StatusNotFound, "NotFound", http.MethodGet, "/v1/orders/"+hashHex([32]byte{0x99}), nil, nil)
	env.expectError(http.StatusBadRequest, "InvalidArgument", http.MethodGet, "/v1/requests/nothex", nil, nil)

	var allowance allowanceJSON
	env.expect(http.StatusOK, http.MethodGet, "/v1/token/allowance/"+addrHex(requester)+"/"+addrHex(requests.RegistryCustody), nil, nil, &allowance)
	if allowance.Allowance != "0" {
		t.Fatalf("expected allowance consumed, got %s", allowance.Allowance)
	}
	var curated curationJSON
	env.expect(http.StatusOK, http.MethodGet, "/v1/curation/"+addrHex(lab), nil, nil, &curated)
	if curated.Curated {
		t.Fatalf("lab unexpectedly curated")
	}
}

func TestWriteValidation(t *testing.T) {
	env := newTestEnv(t, core.Config{})
	body := map[string]string{"country": "Indonesia", "city": "Jakarta", "serviceCategory": "WGS", "stakingAmount": "10"}

	env.expectError(http.StatusUnauthorized, "Unauthenticated", http.MethodPost, "/v1/requests", nil, body)
	env.expectError(http.StatusPaymentRequired, "InsufficientBalance", http.MethodPost, "/v1/requests", &requester, body)

	body["stakingAmount"] = "ten"
	env.expectError(http.StatusBadRequest, "InvalidArgument", http.MethodPost, "/v1/requests", &requester, body)
	body["stakingAmount"] = "0"
	env.expectError(http.StatusBadRequest, "InvalidAmount", http.MethodPost, "/v1/requests", &requester, body)

	env.expectError(http.StatusBadRequest, "InvalidArgument", http.MethodPost, "/v1/requests", &requester,
		map[string]string{"unknown": "field"})
	env.expectError(http.StatusForbidden, "NotAuthorized", http.MethodPost, "/v1/token/mint", &requester,
		map[string]string{"to": addrHex(requester), "amount": "5"})
}

func TestPausedModuleReturnsServiceUnavailable(t *testing.T) {
	env := newTestEnv(t, core.Config{PausedModules: []string{"requests"}})
	env.expect(http.StatusOK, http.MethodPost, "/v1/token/approve", &requester,
		map[string]string{"spender": addrHex(requests.RegistryCustody), "amount": "10"}, nil)
	env.expectError(http.StatusServiceUnavailable, "ModulePaused", http.MethodPost, "/v1/requests", &requester,
		map[string]string{"country": "Indonesia", "city": "Jakarta", "serviceCategory": "WGS", "stakingAmount": "10"})
}

func TestFaucetMint(t *testing.T) {
	env := newTestEnv(t, core.Config{FaucetEnabled: true})
	env.expect(http.StatusOK, http.MethodPost, "/v1/token/mint", &lab,
		map[string]string{"to": addrHex(lab), "amount": "25"}, nil)
	var balance balanceJSON
	env.expect(http.StatusOK, http.MethodGet, "/v1/token/balance/"+addrHex(lab), nil, nil, &balance)
	if balance.Balance != "25" {
		t.Fatalf("unexpected balance %s", balance.Balance)
	}
}

func TestListEventsPaging(t *testing.T) {
	env := newTestEnv(t, core.Config{})
	env.createRequest("10")

	var page eventPageJSON
	env.expect(http.StatusOK, http.MethodGet, "/v1/events?limit=2", nil, nil, &page)
	if len(page.Events) != 2 || page.Next != 2 {
		t.Fatalf("unexpected first page %+v", page)
	}
	if page.Events[0].Type != "token.mint" {
		t.Fatalf("expected genesis mint first, got %s", page.Events[0].Type)
	}
	env.expect(http.StatusOK, http.MethodGet, fmt.Sprintf("/v1/events?cursor=%d", page.Next), nil, nil, &page)
	if len(page.Events) == 0 || page.Events[len(page.Events)-1].Type != requests.EventTypeCreated {
		t.Fatalf("expected request created last, got %+v", page.Events)
	}
	env.expectError(http.StatusBadRequest, "InvalidArgument", http.MethodGet, "/v1/events?cursor=-1", nil, nil)

	env.expect(http.StatusOK, http.MethodGet, "/v1/events?cursor=18446744073709551615", nil, nil, &page)
	if len(page.Events) != 0 || page.Next != math.MaxUint64 {
		t.Fatalf("expected empty page past head, got %+v", page)
	}
}

func TestCustodyAccountsCannotMoveFundsOverHTTP(t *testing.T) {
	env := newTestEnv(t, core.Config{})
	env.createRequest("10")
	env.expect(http.StatusOK, http.MethodPost, "/v1/token/transfer", &requester,
		map[string]string{"to": addrHex(escrow.CustodyAddress), "amount": "5"}, nil)

	for _, custody := range [][20]byte{requests.RegistryCustody, escrow.CustodyAddress} {
		custody := custody
		env.expectError(http.StatusUnauthorized, "Unauthenticated", http.MethodPost, "/v1/token/transfer", &custody,
			map[string]string{"to": addrHex(lab), "amount": "1"})
		env.expectError(http.StatusUnauthorized, "Unauthenticated", http.MethodPost, "/v1/token/approve", &custody,
			map[string]string{"spender": addrHex(lab), "amount": "1"})

		var allowance allowanceJSON
		env.expect(http.StatusOK, http.MethodGet, "/v1/token/allowance/"+addrHex(custody)+"/"+addrHex(lab), nil, nil, &allowance)
		if allowance.Allowance != "0" {
			t.Fatalf("custody %s granted allowance %s", addrHex(custody), allowance.Allowance)
		}
	}

	var balance balanceJSON
	env.expect(http.StatusOK, http.MethodGet, "/v1/token/balance/"+addrHex(requests.RegistryCustody), nil, nil, &balance)
	if balance.Balance != "10" {
		t.Fatalf("registry custody balance changed: %s", balance.Balance)
	}
	env.expect(http.StatusOK, http.MethodGet, "/v1/token/balance/"+addrHex(escrow.CustodyAddress), nil, nil, &balance)
	if balance.Balance != "5" {
		t.Fatalf("escrow custody balance changed: %s", balance.Balance)
	}
	env.expect(http.StatusOK, http.MethodGet, "/v1/token/balance/"+addrHex(lab), nil, nil, &balance)
	if balance.Balance != "0" {
		t.Fatalf("lab unexpectedly funded: %s", balance.Balance)
	}
}

func TestEventsWebsocket(t *testing.T) {
	env := newTestEnv(t, core.Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/v1/events/ws?cursor=0"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	read := func() eventJSON {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var evt eventJSON
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return evt
	}

	backlog := read()
	if backlog.Sequence != 1 || backlog.Type != "token.mint" {
		t.Fatalf("unexpected backlog event %+v", backlog)
	}

	env.expect(http.StatusOK, http.MethodPost, "/v1/curation/"+addrHex(lab), &daoAdmin, nil, nil)
	live := read()
	if live.Sequence != 2 || live.Type != "curation.lab_curated" {
		t.Fatalf("unexpected live event %+v", live)
	}
	if live.Attributes["lab"] != events.FormatAddress(lab) {
		t.Fatalf("unexpected lab attribute %q", live.Attributes["lab"])
	}
}

func TestHealthAndRequestID(t *testing.T) {
	env := newTestEnv(t, core.Config{})
	res, err := env.server.Client().Get(env.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("unexpected health status %d", res.StatusCode)
	}
	if res.Header.Get(middleware.RequestIDHeader) == "" {
		t.Fatalf("missing request id header")
	}
}
