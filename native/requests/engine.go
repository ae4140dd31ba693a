package requests

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ledgererrors "labledger/core/errors"
	"labledger/core/events"
	"labledger/core/types"
	"labledger/crypto"
	"labledger/native/common"
	"labledger/native/escrow"
)

// DefaultUnstakeCooldown is the delay between unstaking and retrieval.
const DefaultUnstakeCooldown = 144 * time.Hour

var (
	errNilState      = errors.New("requests engine: state not configured")
	errNilCollab     = errors.New("requests engine: collaborators not configured")
	errOfferNotFound = errors.New("requests engine: claimed request has no service offer")
)

// RegistryCustody holds every stake until it is retrieved or forwarded.
var RegistryCustody = crypto.ModuleAddress(common.ModuleRequests)

type engineState interface {
	RequestPut(*Request) error
	RequestGet(hash [32]byte) (*Request, bool, error)
	ServiceOfferPut(*ServiceOffer) error
	ServiceOfferGet(hash [32]byte) (*ServiceOffer, bool, error)
	RequestNextSequence() (uint64, error)
	RequestIndexAppend(index string, hash [32]byte) error
	RequestIndexList(index string) ([][32]byte, error)
}

type curationView interface {
	IsCurated(lab [20]byte) (bool, error)
}

type tokenLedger interface {
	Transfer(from, to [20]byte, amount *big.Int) error
	TransferFrom(spender, owner, to [20]byte, amount *big.Int) error
	Approve(owner, spender [20]byte, amount *big.Int) error
}

type escrowLedger interface {
	PayOrder(caller [20]byte, p escrow.Payment) (*escrow.Order, error)
}

// ProcessParams carries the order metadata the requester supplies when
// converting a claimed request into an escrow payment.
type ProcessParams struct {
	RequestHash              [32]byte
	OrderID                  [32]byte
	CustomerSubstrateAddress string
	SellerSubstrateAddress   string
	CustomerAddress          [20]byte
	SellerAddress            [20]byte
	DNASampleTrackingID      string
}

// Engine implements the staking request registry.
type Engine struct {
	state    engineState
	curation curationView
	token    tokenLedger
	escrow   escrowLedger
	emitter  events.Emitter
	pauses   common.PauseView
	cooldown time.Duration
	nowFn    func() int64
}

// NewEngine creates a registry engine using the default unstake cooldown.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		cooldown: DefaultUnstakeCooldown,
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCuration configures the allowlist consulted before claims.
func (e *Engine) SetCuration(c curationView) { e.curation = c }

// SetToken configures the token ledger stakes move through.
func (e *Engine) SetToken(token tokenLedger) { e.token = token }

// SetEscrow configures the escrow ledger processed requests pay into.
func (e *Engine) SetEscrow(esc escrowLedger) { e.escrow = esc }

// SetPauses configures the pause view consulted before mutating calls.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetCooldown overrides the unstake cooldown. Non-positive values restore the
// default.
func (e *Engine) SetCooldown(d time.Duration) {
	if d <= 0 {
		d = DefaultUnstakeCooldown
	}
	e.cooldown = d
}

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(requestEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.token == nil || e.curation == nil || e.escrow == nil {
		return errNilCollab
	}
	return common.Guard(e.pauses, common.ModuleRequests)
}

func (e *Engine) loadRequest(hash [32]byte) (*Request, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	req, ok, err := e.state.RequestGet(hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("requests: request %x: %w", hash, ledgererrors.ErrNotFound)
	}
	return req, nil
}

// loadOwned returns the request when caller is its requester.
func (e *Engine) loadOwned(caller [20]byte, hash [32]byte) (*Request, error) {
	req, err := e.loadRequest(hash)
	if err != nil {
		return nil, err
	}
	if req.Requester != caller {
		return nil, fmt.Errorf("requests: caller is not the requester: %w", ledgererrors.ErrNotAuthorized)
	}
	return req, nil
}

// CreateRequest pulls stake from the caller into registry custody and records
// a new OPEN request.
func (e *Engine) CreateRequest(caller [20]byte, country, city, category string, stake *big.Int) (*Request, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.CheckPositive(stake); err != nil {
		return nil, fmt.Errorf("requests: staking amount: %w", err)
	}
	for name, value := range map[string]string{"country": country, "city": city, "service category": category} {
		if strings.TrimSpace(value) == "" {
			return nil, fmt.Errorf("requests: %s required: %w", name, ledgererrors.ErrInvalidArgument)
		}
	}
	amount := common.CloneAmount(stake)
	if err := e.token.TransferFrom(RegistryCustody, caller, RegistryCustody, amount); err != nil {
		if errors.Is(err, ledgererrors.ErrInsufficientBalance) {
			return nil, fmt.Errorf("requests: pull stake: %w", err)
		}
		return nil, err
	}
	seq, err := e.state.RequestNextSequence()
	if err != nil {
		return nil, err
	}
	req := &Request{
		Hash:            ComputeHash(caller, country, city, category, amount, seq),
		Requester:       caller,
		Country:         country,
		City:            city,
		ServiceCategory: category,
		StakingAmount:   amount,
		Status:          StatusOpen,
		CreatedAt:       e.now(),
	}
	if err := e.state.RequestPut(req); err != nil {
		return nil, err
	}
	for _, index := range []string{
		IndexAll(),
		IndexCountry(country),
		IndexCountryCity(country, city),
		IndexRequester(caller),
	} {
		if err := e.state.RequestIndexAppend(index, req.Hash); err != nil {
			return nil, err
		}
	}
	e.emit(NewCreatedEvent(req))
	return req.Clone(), nil
}

// ClaimRequest records the caller's price quote against an OPEN request. The
// caller must be a curated lab.
func (e *Engine) ClaimRequest(caller [20]byte, hash, serviceID [32]byte, testingPrice, qcPrice *big.Int) (*ServiceOffer, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	curated, err := e.curation.IsCurated(caller)
	if err != nil {
		return nil, err
	}
	if !curated {
		return nil, fmt.Errorf("requests: claim: %w", ledgererrors.ErrNotCurated)
	}
	req, err := e.loadRequest(hash)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusOpen {
		return nil, fmt.Errorf("requests: request is %s: %w", req.Status, ledgererrors.ErrAlreadyClaimed)
	}
	offer := &ServiceOffer{
		RequestHash:  hash,
		LabAddress:   caller,
		ServiceID:    serviceID,
		TestingPrice: common.CloneAmount(testingPrice),
		QCPrice:      common.CloneAmount(qcPrice),
	}
	total, err := offer.TotalPrice()
	if err != nil {
		return nil, fmt.Errorf("requests: claim: %w", err)
	}
	if total.Sign() == 0 {
		return nil, fmt.Errorf("requests: claim: %w: quoted price is zero", ledgererrors.ErrInvalidAmount)
	}
	if err := e.state.ServiceOfferPut(offer); err != nil {
		return nil, err
	}
	req.Status = StatusClaimed
	req.LabAddress = caller
	if err := e.state.RequestPut(req); err != nil {
		return nil, err
	}
	e.emit(NewClaimedEvent(caller, hash))
	return offer.Clone(), nil
}

// ProcessRequest converts a CLAIMED request into an escrow payment. Stake above
// the quoted price is returned to the requester and the remainder is paid into
// the order named by p.OrderID.
func (e *Engine) ProcessRequest(caller [20]byte, p ProcessParams) (*Request, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	req, err := e.loadOwned(caller, p.RequestHash)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusClaimed {
		return nil, fmt.Errorf("requests: cannot process request in status %s: %w", req.Status, ledgererrors.ErrInvalidState)
	}
	offer, ok, err := e.state.ServiceOfferGet(p.RequestHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errOfferNotFound
	}
	total, err := offer.TotalPrice()
	if err != nil {
		return nil, err
	}
	forwarded := common.MinAmount(req.StakingAmount, total)
	excess, err := common.SafeSub(req.StakingAmount, forwarded)
	if err != nil {
		return nil, err
	}

	req.Status = StatusProcessed
	if err := e.state.RequestPut(req); err != nil {
		return nil, err
	}

	if excess.Sign() > 0 {
		if err := e.token.Transfer(RegistryCustody, req.Requester, excess); err != nil {
			return nil, fmt.Errorf("requests: refund excess: %w", err)
		}
		e.emit(NewExcessRefundedEvent(req, excess))
	}
	payment := escrow.Payment{
		OrderID:                  p.OrderID,
		ServiceID:                offer.ServiceID,
		CustomerSubstrateAddress: p.CustomerSubstrateAddress,
		SellerSubstrateAddress:   p.SellerSubstrateAddress,
		CustomerAddress:          p.CustomerAddress,
		SellerAddress:            p.SellerAddress,
		DNASampleTrackingID:      p.DNASampleTrackingID,
		TestingPrice:             common.CloneAmount(offer.TestingPrice),
		QCPrice:                  common.CloneAmount(offer.QCPrice),
		Amount:                   forwarded,
	}
	if err := e.token.Approve(RegistryCustody, escrow.CustodyAddress, forwarded); err != nil {
		return nil, fmt.Errorf("requests: approve escrow: %w", err)
	}
	if _, err := e.escrow.PayOrder(RegistryCustody, payment); err != nil {
		return nil, fmt.Errorf("requests: forward to escrow: %w", err)
	}
	e.emit(NewProcessedEvent(req, offer, payment))
	return req.Clone(), nil
}

// Unstake withdraws an OPEN request and starts the retrieval cooldown. The
// stake stays in custody until RetrieveUnstakedAmount.
func (e *Engine) Unstake(caller [20]byte, hash [32]byte) (*Request, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	req, err := e.loadOwned(caller, hash)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusOpen {
		return nil, fmt.Errorf("requests: cannot unstake request in status %s: %w", req.Status, ledgererrors.ErrInvalidState)
	}
	req.Status = StatusUnstaked
	req.UnstakedAt = e.now()
	if err := e.state.RequestPut(req); err != nil {
		return nil, err
	}
	e.emit(NewUnstakedEvent(req))
	return req.Clone(), nil
}

// RetrieveUnstakedAmount pays an unstaked request's stake back to the
// requester once the cooldown has elapsed. A request can be retrieved once;
// later calls fail with ErrNothingToRetrieve.
func (e *Engine) RetrieveUnstakedAmount(caller [20]byte, hash [32]byte) (*Request, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	req, err := e.loadOwned(caller, hash)
	if err != nil {
		return nil, err
	}
	if req.Status != StatusUnstaked {
		return nil, fmt.Errorf("requests: cannot retrieve request in status %s: %w", req.Status, ledgererrors.ErrInvalidState)
	}
	readyAt := req.UnstakedAt + int64(e.cooldown/time.Second)
	if e.now() < readyAt {
		return nil, fmt.Errorf("requests: retrievable at %d: %w", readyAt, ledgererrors.ErrCooldownNotElapsed)
	}
	amount := common.CloneAmount(req.StakingAmount)
	if amount.Sign() == 0 {
		return nil, fmt.Errorf("requests: stake already retrieved: %w", ledgererrors.ErrNothingToRetrieve)
	}
	req.StakingAmount = big.NewInt(0)
	if err := e.state.RequestPut(req); err != nil {
		return nil, err
	}
	if err := e.token.Transfer(RegistryCustody, req.Requester, amount); err != nil {
		return nil, fmt.Errorf("requests: return stake: %w", err)
	}
	e.emit(NewUnstakeRetrievedEvent(req, amount))
	return req.Clone(), nil
}

// GetRequestByHash returns a copy of the stored request.
func (e *Engine) GetRequestByHash(hash [32]byte) (*Request, error) {
	req, err := e.loadRequest(hash)
	if err != nil {
		return nil, err
	}
	return req.Clone(), nil
}

// ServiceOfferByRequestHash returns the offer recorded when the request was
// claimed.
func (e *Engine) ServiceOfferByRequestHash(hash [32]byte) (*ServiceOffer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	offer, ok, err := e.state.ServiceOfferGet(hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("requests: offer for %x: %w", hash, ledgererrors.ErrNotFound)
	}
	return offer.Clone(), nil
}

func (e *Engine) list(index string) ([][32]byte, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	hashes, err := e.state.RequestIndexList(index)
	if err != nil {
		return nil, err
	}
	if hashes == nil {
		hashes = [][32]byte{}
	}
	return hashes, nil
}

// GetAllRequests lists every request hash in creation order.
func (e *Engine) GetAllRequests() ([][32]byte, error) { return e.list(IndexAll()) }

// GetRequestsByCountry lists the request hashes created for country.
func (e *Engine) GetRequestsByCountry(country string) ([][32]byte, error) {
	return e.list(IndexCountry(country))
}

// GetRequestsByCountryCity lists the request hashes created for the pair.
func (e *Engine) GetRequestsByCountryCity(country, city string) ([][32]byte, error) {
	return e.list(IndexCountryCity(country, city))
}

// GetRequestsByRequesterAddress lists the request hashes created by requester.
func (e *Engine) GetRequestsByRequesterAddress(requester [20]byte) ([][32]byte, error) {
	return e.list(IndexRequester(requester))
}

// GetRequestCount returns the number of requests ever created.
func (e *Engine) GetRequestCount() (uint64, error) {
	hashes, err := e.list(IndexAll())
	if err != nil {
		return 0, err
	}
	return uint64(len(hashes)), nil
}
