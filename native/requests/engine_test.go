package requests

import (
	"bytes"
	"errors"
	"math/big"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	ledgererrors "labledger/core/errors"
	"labledger/core/events"
	"labledger/native/common"
	"labledger/native/curation"
	"labledger/native/escrow"
	"labledger/native/token"
)

type allowanceKey struct {
	owner   [20]byte
	spender [20]byte
}

// mockState backs every engine the registry talks to.
type mockState struct {
	requests   map[[32]byte]*Request
	offers     map[[32]byte]*ServiceOffer
	indexes    map[string][][32]byte
	seq        uint64
	orders     map[[32]byte]*escrow.Order
	labs       map[[20]byte]bool
	balances   map[[20]byte]*big.Int
	allowances map[allowanceKey]*big.Int
	supply     *big.Int
}

func newMockState() *mockState {
	return &mockState{
		requests:   make(map[[32]byte]*Request),
		offers:     make(map[[32]byte]*ServiceOffer),
		indexes:    make(map[string][][32]byte),
		orders:     make(map[[32]byte]*escrow.Order),
		labs:       make(map[[20]byte]bool),
		balances:   make(map[[20]byte]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
		supply:     big.NewInt(0),
	}
}

func (m *mockState) RequestPut(r *Request) error {
	m.requests[r.Hash] = r.Clone()
	return nil
}

func (m *mockState) RequestGet(hash [32]byte) (*Request, bool, error) {
	r, ok := m.requests[hash]
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

func (m *mockState) ServiceOfferPut(o *ServiceOffer) error {
	m.offers[o.RequestHash] = o.Clone()
	return nil
}

func (m *mockState) ServiceOfferGet(hash [32]byte) (*ServiceOffer, bool, error) {
	o, ok := m.offers[hash]
	if !ok {
		return nil, false, nil
	}
	return o.Clone(), true, nil
}

func (m *mockState) RequestNextSequence() (uint64, error) {
	m.seq++
	return m.seq, nil
}

func (m *mockState) RequestIndexAppend(index string, hash [32]byte) error {
	m.indexes[index] = append(m.indexes[index], hash)
	return nil
}

func (m *mockState) RequestIndexList(index string) ([][32]byte, error) {
	return append([][32]byte(nil), m.indexes[index]...), nil
}

func (m *mockState) OrderPut(o *escrow.Order) error {
	m.orders[o.OrderID] = o.Clone()
	return nil
}

func (m *mockState) OrderGet(id [32]byte) (*escrow.Order, bool, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, false, nil
	}
	return o.Clone(), true, nil
}

func (m *mockState) CuratedLabPut(lab [20]byte, curated bool) error {
	m.labs[lab] = curated
	return nil
}

func (m *mockState) CuratedLabGet(lab [20]byte) (bool, error) { return m.labs[lab], nil }

func (m *mockState) TokenBalance(addr [20]byte) (*big.Int, error) {
	return common.CloneAmount(m.balances[addr]), nil
}

func (m *mockState) SetTokenBalance(addr [20]byte, amount *big.Int) error {
	m.balances[addr] = common.CloneAmount(amount)
	return nil
}

func (m *mockState) TokenAllowance(owner, spender [20]byte) (*big.Int, error) {
	return common.CloneAmount(m.allowances[allowanceKey{owner, spender}]), nil
}

func (m *mockState) SetTokenAllowance(owner, spender [20]byte, amount *big.Int) error {
	m.allowances[allowanceKey{owner, spender}] = common.CloneAmount(amount)
	return nil
}

func (m *mockState) TokenSupply() (*big.Int, error) { return common.CloneAmount(m.supply), nil }

func (m *mockState) SetTokenSupply(amount *big.Int) error {
	m.supply = common.CloneAmount(amount)
	return nil
}

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func testID(fill byte) [32]byte {
	var id [32]byte
	copy(id[:], bytes.Repeat([]byte{fill}, 32))
	return id
}

const (
	country  = "Indonesia"
	city     = "Jakarta"
	category = "Whole-Genome Sequencing"
)

type fixture struct {
	state     *mockState
	token     *token.Engine
	curation  *curation.Engine
	escrow    *escrow.Engine
	engine    *Engine
	recorder  *events.Recorder
	dao       [20]byte
	escrowAdm [20]byte
	requester [20]byte
	lab       [20]byte
	now       int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		state:     newMockState(),
		recorder:  &events.Recorder{},
		dao:       testAddress(0xDA),
		escrowAdm: testAddress(0xE5),
		requester: testAddress(0x01),
		lab:       testAddress(0x1A),
		now:       1_700_000_000,
	}
	clock := func() int64 { return f.now }

	f.token = token.NewEngine()
	f.token.SetState(f.state)
	f.token.SetEmitter(f.recorder)

	f.curation = curation.NewEngine(f.dao)
	f.curation.SetState(f.state)
	f.curation.SetEmitter(f.recorder)

	f.escrow = escrow.NewEngine(f.escrowAdm)
	f.escrow.SetState(f.state)
	f.escrow.SetToken(f.token)
	f.escrow.SetEmitter(f.recorder)
	f.escrow.SetNowFunc(clock)

	f.engine = NewEngine()
	f.engine.SetState(f.state)
	f.engine.SetCuration(f.curation)
	f.engine.SetToken(f.token)
	f.engine.SetEscrow(f.escrow)
	f.engine.SetEmitter(f.recorder)
	f.engine.SetNowFunc(clock)

	if err := f.token.Mint(f.requester, big.NewInt(1_000), "test"); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := f.token.Approve(f.requester, RegistryCustody, big.NewInt(1_000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	return f
}

func (f *fixture) balance(t *testing.T, addr [20]byte) int64 {
	t.Helper()
	bal, err := f.token.BalanceOf(addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal.Int64()
}

func (f *fixture) create(t *testing.T, stake int64) *Request {
	t.Helper()
	req, err := f.engine.CreateRequest(f.requester, country, city, category, big.NewInt(stake))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return req
}

func (f *fixture) claim(t *testing.T, hash [32]byte, testingPrice, qcPrice int64) {
	t.Helper()
	if err := f.curation.CurateLab(f.dao, f.lab); err != nil {
		t.Fatalf("curate: %v", err)
	}
	if _, err := f.engine.ClaimRequest(f.lab, hash, testID(0x5E), big.NewInt(testingPrice), big.NewInt(qcPrice)); err != nil {
		t.Fatalf("claim: %v", err)
	}
}

func (f *fixture) processParams(hash [32]byte, orderID [32]byte) ProcessParams {
	return ProcessParams{
		RequestHash:              hash,
		OrderID:                  orderID,
		CustomerSubstrateAddress: "5EBs6czjmUy31iawezsude3vudFVfi9gMv6kAHjNeBzzGgvH",
		SellerSubstrateAddress:   "5ESGhRuAhECXu96Pz9L8pwEEd1AeVhStXX67TWE1zHRuvJNU",
		CustomerAddress:          f.requester,
		SellerAddress:            f.lab,
		DNASampleTrackingID:      "Y9JCOABLP16GKHQ14RY9J",
	}
}

func TestComputeHashMatchesPackedEncoding(t *testing.T) {
	requester := testAddress(0x01)
	stake := big.NewInt(10)
	packed := append([]byte{}, requester[:]...)
	packed = append(packed, []byte(country+city+category)...)
	word := make([]byte, 32)
	word[31] = 10
	packed = append(packed, word...)
	seq := make([]byte, 32)
	seq[31] = 1
	packed = append(packed, seq...)

	var want [32]byte
	copy(want[:], ethcrypto.Keccak256(packed))
	if got := ComputeHash(requester, country, city, category, stake, 1); got != want {
		t.Fatalf("hash mismatch: got %x want %x", got, want)
	}
	if stake.Int64() != 10 {
		t.Fatalf("stake mutated: %s", stake)
	}
}

func TestCreateRequestMovesStakeIntoCustody(t *testing.T) {
	f := newFixture(t)
	req := f.create(t, 10)

	if got := f.balance(t, RegistryCustody); got != 10 {
		t.Fatalf("custody = %d, want 10", got)
	}
	if got := f.balance(t, f.requester); got != 990 {
		t.Fatalf("requester = %d, want 990", got)
	}
	if req.Status != StatusOpen || req.CreatedAt != f.now {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Hash != ComputeHash(f.requester, country, city, category, big.NewInt(10), 1) {
		t.Fatalf("hash not salted with sequence 1")
	}
	created := f.recorder.Filter(EventTypeCreated)
	if len(created) != 1 || created[0].Attributes["stakingAmount"] != "10" || created[0].Attributes["country"] != country {
		t.Fatalf("unexpected created events: %+v", created)
	}
}

func TestIdenticalRequestsGetDistinctHashes(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, 10)
	second := f.create(t, 10)
	if first.Hash == second.Hash {
		t.Fatalf("identical requests share hash %x", first.Hash)
	}

	all, err := f.engine.GetAllRequests()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0] != first.Hash || all[1] != second.Hash {
		t.Fatalf("unexpected global list: %x", all)
	}
	for name, list := range map[string]func() ([][32]byte, error){
		"country":      func() ([][32]byte, error) { return f.engine.GetRequestsByCountry(country) },
		"country-city": func() ([][32]byte, error) { return f.engine.GetRequestsByCountryCity(country, city) },
		"requester":    func() ([][32]byte, error) { return f.engine.GetRequestsByRequesterAddress(f.requester) },
	} {
		hashes, err := list()
		if err != nil || len(hashes) != 2 {
			t.Fatalf("%s index: %v %x", name, err, hashes)
		}
	}
	other, err := f.engine.GetRequestsByCountryCity(country, "Bandung")
	if err != nil || len(other) != 0 {
		t.Fatalf("unexpected other city listing: %v %x", err, other)
	}
	count, err := f.engine.GetRequestCount()
	if err != nil || count != 2 {
		t.Fatalf("count = %d (%v), want 2", count, err)
	}
}

func TestCreateRequestWithoutFundsCreatesNothing(t *testing.T) {
	f := newFixture(t)
	broke := testAddress(0x0B)
	_, err := f.engine.CreateRequest(broke, country, city, category, big.NewInt(10))
	if !errors.Is(err, ledgererrors.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if count, _ := f.engine.GetRequestCount(); count != 0 {
		t.Fatalf("request recorded despite failed pull")
	}
}

func TestCreateRequestValidatesInput(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.CreateRequest(f.requester, country, city, category, big.NewInt(0)); !errors.Is(err, ledgererrors.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := f.engine.CreateRequest(f.requester, " ", city, category, big.NewInt(1)); !errors.Is(err, ledgererrors.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestClaimRequiresCuration(t *testing.T) {
	f := newFixture(t)
	req := f.create(t, 10)

	_, err := f.engine.ClaimRequest(f.lab, req.Hash, testID(0x5E), big.NewInt(10), big.NewInt(5))
	if !errors.Is(err, ledgererrors.ErrNotCurated) {
		t.Fatalf("expected not curated, got %v", err)
	}
	f.claim(t, req.Hash, 10, 5)

	stored, err := f.engine.GetRequestByHash(req.Hash)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != StatusClaimed || stored.LabAddress != f.lab {
		t.Fatalf("unexpected claimed request: %+v", stored)
	}
	offer, err := f.engine.ServiceOfferByRequestHash(req.Hash)
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if offer.LabAddress != f.lab || offer.TestingPrice.Int64() != 10 || offer.QCPrice.Int64() != 5 {
		t.Fatalf("unexpected offer: %+v", offer)
	}
	claimed := f.recorder.Filter(EventTypeClaimed)
	if len(claimed) != 1 || claimed[0].Attributes["requestHash"] != events.FormatHash(req.Hash) {
		t.Fatalf("unexpected claim events: %+v", claimed)
	}
}

func TestReclaimFailsForAnyCaller(t *testing.T) {
	f := newFixture(t)
	req := f.create(t, 10)
	f.claim(t, req.Hash, 10, 5)

	other := testAddress(0x1B)
	if err := f.curation.CurateLab(f.dao, other); err != nil {
		t.Fatalf("curate: %v", err)
	}
	for _, lab := range [][20]byte{f.lab, other} {
		_, err := f.engine.ClaimRequest(lab, req.Hash, testID(0x5F), big.NewInt(1), big.NewInt(1))
		if !errors.Is(err, ledgererrors.ErrAlreadyClaimed) {
			t.Fatalf("expected already claimed, got %v", err)
		}
	}
}

func TestClaimUnknownRequest(t *testing.T) {
	f := newFixture(t)
	if err := f.curation.CurateLab(f.dao, f.lab); err != nil {
		t.Fatalf("curate: %v", err)
	}
	_, err := f.engine.ClaimRequest(f.lab, testID(0x42), testID(0x5E), big.NewInt(1), big.NewInt(1))
	if !errors.Is(err, ledgererrors.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestProcessRefundsExcessAndPaysEscrow(t *testing.T) {
	f := newFixture(t)
	req := f.create(t, 20)
	f.claim(t, req.Hash, 10, 5)
	orderID := testID(0x0D)

	processed, err := f.engine.ProcessRequest(f.requester, f.processParams(req.Hash, orderID))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if processed.Status != StatusProcessed {
		t.Fatalf("status = %s, want PROCESSED", processed.Status)
	}
	refunds := f.recorder.Filter(EventTypeExcessRefunded)
	if len(refunds) != 1 || refunds[0].Attributes["amount"] != "5" {
		t.Fatalf("unexpected refund events: %+v", refunds)
	}
	if got := f.balance(t, escrow.CustodyAddress); got != 15 {
		t.Fatalf("escrow custody = %d, want 15", got)
	}
	if got := f.balance(t, RegistryCustody); got != 0 {
		t.Fatalf("registry custody = %d, want 0", got)
	}
	if got := f.balance(t, f.requester); got != 985 {
		t.Fatalf("requester = %d, want 985", got)
	}
	order, err := f.escrow.GetOrderByOrderID(orderID)
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	if order.AmountPaid.Int64() != 15 || order.Status != escrow.OrderPaid {
		t.Fatalf("unexpected order: paid=%s status=%s", order.AmountPaid, order.Status)
	}
	if order.CustomerAddress != f.requester || order.SellerAddress != f.lab || order.DNASampleTrackingID != "Y9JCOABLP16GKHQ14RY9J" {
		t.Fatalf("order metadata not forwarded: %+v", order)
	}
	done := f.recorder.Filter(EventTypeProcessed)
	if len(done) != 1 {
		t.Fatalf("expected one processed event, got %d", len(done))
	}
	attrs := done[0].Attributes
	if attrs["orderId"] != events.FormatHash(orderID) || attrs["stakingAmount"] != "20" || attrs["qcPrice"] != "5" {
		t.Fatalf("unexpected processed attributes: %v", attrs)
	}
}

func TestProcessUnderfundedStakeLeavesPartialOrder(t *testing.T) {
	f := newFixture(t)
	req := f.create(t, 10)
	f.claim(t, req.Hash, 10, 5)
	orderID := testID(0x0E)

	if _, err := f.engine.ProcessRequest(f.requester, f.processParams(req.Hash, orderID)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if refunds := f.recorder.Filter(EventTypeExcessRefunded); len(refunds) != 0 {
		t.Fatalf("no excess expected, got %+v", refunds)
	}
	order, err := f.escrow.GetOrderByOrderID(orderID)
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	if order.AmountPaid.Int64() != 10 || order.Status != escrow.OrderPaidPartial {
		t.Fatalf("unexpected order: paid=%s status=%s", order.AmountPaid, order.Status)
	}
}

func TestProcessRequiresRequesterAndClaim(t *testing.T) {
	f := newFixture(t)
	req := f.create(t, 10)

	if _, err := f.engine.ProcessRequest(f.requester, f.processParams(req.Hash, testID(0x0F))); !errors.Is(err, ledgererrors.ErrInvalidState) {
		t.Fatalf("expected invalid state for OPEN request, got %v", err)
	}
	f.claim(t, req.Hash, 10, 5)
	if _, err := f.engine.ProcessRequest(f.lab, f.processParams(req.Hash, testID(0x0F))); !errors.Is(err, ledgererrors.ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
}

func TestProcessSurfacesEscrowFailure(t *testing.T) {
	f := newFixture(t)
	req := f.create(t, 10)
	f.claim(t, req.Hash, 10, 5)
	f.escrow.SetPauses(common.StaticPauses{common.ModuleEscrow: true})

	_, err := f.engine.ProcessRequest(f.requester, f.processParams(req.Hash, testID(0x10)))
	if !errors.Is(err, ledgererrors.ErrModulePaused) {
		t.Fatalf("expected escrow failure to propagate, got %v", err)
	}
	if processed := f.recorder.Filter(EventTypeProcessed); len(processed) != 0 {
		t.Fatalf("processed event emitted despite failure")
	}
}

func TestUnstakeAndRetrieveAfterCooldown(t *testing.T) {
	f := newFixture(t)
	req := f.create(t, 10)

	if _, err := f.engine.Unstake(testAddress(0x09), req.Hash); !errors.Is(err, ledgererrors.ErrNotAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
	unstaked, err := f.engine.Unstake(f.requester, req.Hash)
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if unstaked.Status != StatusUnstaked || unstaked.UnstakedAt != f.now {
		t.Fatalf("unexpected unstaked request: %+v", unstaked)
	}
	if got := f.balance(t, RegistryCustody); got != 10 {
		t.Fatalf("stake left custody early: %d", got)
	}

	f.now += int64((DefaultUnstakeCooldown - time.Second) / time.Second)
	if _, err := f.engine.RetrieveUnstakedAmount(f.requester, req.Hash); !errors.Is(err, ledgererrors.ErrCooldownNotElapsed) {
		t.Fatalf("expected cooldown error, got %v", err)
	}

	f.now++
	retrieved, err := f.engine.RetrieveUnstakedAmount(f.requester, req.Hash)
	if err != nil {
		t.Fatalf("retrieve at exactly 144h: %v", err)
	}
	if retrieved.StakingAmount.Sign() != 0 {
		t.Fatalf("stake not zeroed: %s", retrieved.StakingAmount)
	}
	if got := f.balance(t, f.requester); got != 1_000 {
		t.Fatalf("requester = %d, want 1000", got)
	}
	retrievals := f.recorder.Filter(EventTypeUnstakeRetrieved)
	if len(retrievals) != 1 || retrievals[0].Attributes["amount"] != "10" || retrievals[0].Attributes["stakingAmount"] != "0" {
		t.Fatalf("unexpected retrieval events: %+v", retrievals)
	}

	if _, err := f.engine.RetrieveUnstakedAmount(f.requester, req.Hash); !errors.Is(err, ledgererrors.ErrNothingToRetrieve) {
		t.Fatalf("expected nothing to retrieve, got %v", err)
	}
	if got := f.balance(t, f.requester); got != 1_000 {
		t.Fatalf("second retrieval moved funds: %d", got)
	}
}

func TestUnstakeRequiresOpen(t *testing.T) {
	f := newFixture(t)
	req := f.create(t, 10)
	f.claim(t, req.Hash, 10, 5)
	if _, err := f.engine.Unstake(f.requester, req.Hash); !errors.Is(err, ledgererrors.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if _, err := f.engine.RetrieveUnstakedAmount(f.requester, req.Hash); !errors.Is(err, ledgererrors.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestUnstakedRequestCannotBeClaimed(t *testing.T) {
	f := newFixture(t)
	req := f.create(t, 10)
	if _, err := f.engine.Unstake(f.requester, req.Hash); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if err := f.curation.CurateLab(f.dao, f.lab); err != nil {
		t.Fatalf("curate: %v", err)
	}
	_, err := f.engine.ClaimRequest(f.lab, req.Hash, testID(0x5E), big.NewInt(10), big.NewInt(5))
	if !errors.Is(err, ledgererrors.ErrAlreadyClaimed) {
		t.Fatalf("expected already claimed, got %v", err)
	}
}

func TestCustomCooldown(t *testing.T) {
	f := newFixture(t)
	f.engine.SetCooldown(time.Hour)
	req := f.create(t, 10)
	if _, err := f.engine.Unstake(f.requester, req.Hash); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	f.now += 3600
	if _, err := f.engine.RetrieveUnstakedAmount(f.requester, req.Hash); err != nil {
		t.Fatalf("retrieve: %v", err)
	}
}
