package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	ledgererrors "labledger/core/errors"
	"labledger/core/events"
	ledgerstate "labledger/core/state"
	"labledger/core/types"
	"labledger/native/common"
	"labledger/native/curation"
	"labledger/native/escrow"
	"labledger/native/requests"
	"labledger/native/token"
	"labledger/observability"
	"labledger/storage"
)

var genesisMarkerKey = []byte("genesis/applied")

// ErrFaucetDisabled is returned by Mint when the operator faucet is off.
var ErrFaucetDisabled = fmt.Errorf("faucet disabled: %w", ledgererrors.ErrNotAuthorized)

// Config captures the values fixed for the lifetime of a node.
type Config struct {
	DAOAdmin        [20]byte
	EscrowAdmin     [20]byte
	UnstakeCooldown time.Duration
	PausedModules   []string
	FaucetEnabled   bool
}

// GenesisAllocation credits an address when the ledger is first initialised.
type GenesisAllocation struct {
	Address [20]byte
	Amount  *big.Int
}

// Node is the central controller, wiring the ledger engines to storage. Every
// mutating call runs under stateMu against a fresh state overlay and is either
// committed with its events or discarded entirely.
type Node struct {
	db      storage.Database
	cfg     Config
	pauses  common.StaticPauses
	logger  *slog.Logger
	nowFn   func() int64
	stateMu sync.RWMutex

	streamMu     sync.Mutex
	streamSubs   map[uint64]chan types.EventRecord
	streamNextID uint64
}

// NewNode creates a node over db. The database stays owned by the caller.
func NewNode(db storage.Database, cfg Config, logger *slog.Logger) (*Node, error) {
	if db == nil {
		return nil, errors.New("node: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	pauses := make(common.StaticPauses, len(cfg.PausedModules))
	for _, module := range cfg.PausedModules {
		pauses[module] = true
	}
	if cfg.UnstakeCooldown <= 0 {
		cfg.UnstakeCooldown = requests.DefaultUnstakeCooldown
	}
	return &Node{
		db:     db,
		cfg:    cfg,
		pauses: pauses,
		logger: logger.With("component", "node"),
		nowFn:  func() int64 { return time.Now().Unix() },
	}, nil
}

// SetNowFunc overrides the clock used by every engine. Primarily intended for
// tests.
func (n *Node) SetNowFunc(now func() int64) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	n.nowFn = now
}

// Now returns the node clock in unix seconds.
func (n *Node) Now() int64 {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	return n.nowFn()
}

// DAOAdmin returns the curation administrator.
func (n *Node) DAOAdmin() [20]byte { return n.cfg.DAOAdmin }

// EscrowAdmin returns the escrow administrator.
func (n *Node) EscrowAdmin() [20]byte { return n.cfg.EscrowAdmin }

// FaucetEnabled reports whether Mint is available to callers.
func (n *Node) FaucetEnabled() bool { return n.cfg.FaucetEnabled }

// ledger bundles the engines wired against a single call's overlay.
type ledger struct {
	manager  *ledgerstate.Manager
	recorder *events.Recorder
	token    *token.Engine
	curation *curation.Engine
	escrow   *escrow.Engine
	requests *requests.Engine
}

func (n *Node) newLedger(manager *ledgerstate.Manager) *ledger {
	recorder := &events.Recorder{}

	tokenEngine := token.NewEngine()
	tokenEngine.SetState(manager)
	tokenEngine.SetEmitter(recorder)

	curationEngine := curation.NewEngine(n.cfg.DAOAdmin)
	curationEngine.SetState(manager)
	curationEngine.SetEmitter(recorder)
	curationEngine.SetPauses(n.pauses)

	escrowEngine := escrow.NewEngine(n.cfg.EscrowAdmin)
	escrowEngine.SetState(manager)
	escrowEngine.SetToken(tokenEngine)
	escrowEngine.SetEmitter(recorder)
	escrowEngine.SetPauses(n.pauses)
	escrowEngine.SetNowFunc(n.nowFn)

	requestEngine := requests.NewEngine()
	requestEngine.SetState(manager)
	requestEngine.SetCuration(curationEngine)
	requestEngine.SetToken(tokenEngine)
	requestEngine.SetEscrow(escrowEngine)
	requestEngine.SetEmitter(recorder)
	requestEngine.SetPauses(n.pauses)
	requestEngine.SetCooldown(n.cfg.UnstakeCooldown)
	requestEngine.SetNowFunc(n.nowFn)

	return &ledger{
		manager:  manager,
		recorder: recorder,
		token:    tokenEngine,
		curation: curationEngine,
		escrow:   escrowEngine,
		requests: requestEngine,
	}
}

// execute runs fn against a fresh overlay. On success the overlay and the
// events buffered during fn are committed as one batch and then published;
// on failure both are dropped.
func (n *Node) execute(module, op string, fn func(*ledger) error) error {
	start := time.Now()
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	manager := ledgerstate.NewManager(n.db)
	l := n.newLedger(manager)
	err := fn(l)

	var committed []types.EventRecord
	if err == nil {
		now := n.nowFn()
		for _, evt := range l.recorder.Events() {
			record, appendErr := manager.AppendEvent(evt, now)
			if appendErr != nil {
				err = appendErr
				break
			}
			committed = append(committed, record)
		}
	}
	if err == nil {
		err = manager.Commit()
	}
	if err != nil {
		manager.Discard()
		reason := ledgererrors.Reason(err)
		observability.Ledger().Observe(module, op, reason, time.Since(start))
		n.logger.Info("ledger call rejected", "module", module, "op", op, "reason", reason, "error", err)
		return err
	}

	observability.Ledger().Observe(module, op, "ok", time.Since(start))
	n.logger.Debug("ledger call committed", "module", module, "op", op, "events", len(committed))
	for _, record := range committed {
		observability.Events().RecordEvent(record.Type)
	}
	n.publishEvents(committed)
	return nil
}

// executeAs is execute for calls made on behalf of an external caller. Module
// custody accounts are only ever moved by their own engines.
func (n *Node) executeAs(caller [20]byte, module, op string, fn func(*ledger) error) error {
	return n.execute(module, op, func(l *ledger) error {
		if err := common.GuardCaller(caller); err != nil {
			return err
		}
		return fn(l)
	})
}

// read runs fn against committed state.
func (n *Node) read(fn func(*ledger) error) error {
	n.stateMu.RLock()
	defer n.stateMu.RUnlock()
	return fn(n.newLedger(ledgerstate.NewManager(n.db)))
}

// ApplyGenesis mints the configured allocations the first time the ledger is
// opened. Later calls are no-ops.
func (n *Node) ApplyGenesis(allocations []GenesisAllocation) (bool, error) {
	applied := false
	err := n.execute(common.ModuleToken, "genesis", func(l *ledger) error {
		var done bool
		if _, err := l.manager.KVGet(genesisMarkerKey, &done); err != nil {
			return err
		}
		if done {
			return nil
		}
		for _, alloc := range allocations {
			if err := l.token.Mint(alloc.Address, alloc.Amount, "genesis"); err != nil {
				return fmt.Errorf("genesis allocation %x: %w", alloc.Address, err)
			}
		}
		applied = true
		return l.manager.KVPut(genesisMarkerKey, true)
	})
	return applied, err
}

// --- Request registry ---

func (n *Node) CreateRequest(caller [20]byte, country, city, category string, stake *big.Int) (*requests.Request, error) {
	var out *requests.Request
	err := n.executeAs(caller, common.ModuleRequests, "createRequest", func(l *ledger) error {
		req, err := l.requests.CreateRequest(caller, country, city, category, stake)
		out = req
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Node) ClaimRequest(caller [20]byte, hash, serviceID [32]byte, testingPrice, qcPrice *big.Int) (*requests.ServiceOffer, error) {
	var out *requests.ServiceOffer
	err := n.executeAs(caller, common.ModuleRequests, "claimRequest", func(l *ledger) error {
		offer, err := l.requests.ClaimRequest(caller, hash, serviceID, testingPrice, qcPrice)
		out = offer
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Node) ProcessRequest(caller [20]byte, p requests.ProcessParams) (*requests.Request, error) {
	var out *requests.Request
	err := n.executeAs(caller, common.ModuleRequests, "processRequest", func(l *ledger) error {
		req, err := l.requests.ProcessRequest(caller, p)
		out = req
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Node) Unstake(caller [20]byte, hash [32]byte) (*requests.Request, error) {
	var out *requests.Request
	err := n.executeAs(caller, common.ModuleRequests, "unstake", func(l *ledger) error {
		req, err := l.requests.Unstake(caller, hash)
		out = req
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Node) RetrieveUnstakedAmount(caller [20]byte, hash [32]byte) (*requests.Request, error) {
	var out *requests.Request
	err := n.executeAs(caller, common.ModuleRequests, "retrieveUnstakedAmount", func(l *ledger) error {
		req, err := l.requests.RetrieveUnstakedAmount(caller, hash)
		out = req
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Node) GetRequestByHash(hash [32]byte) (*requests.Request, error) {
	var out *requests.Request
	err := n.read(func(l *ledger) error {
		req, err := l.requests.GetRequestByHash(hash)
		out = req
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Node) ServiceOfferByRequestHash(hash [32]byte) (*requests.ServiceOffer, error) {
	var out *requests.ServiceOffer
	err := n.read(func(l *ledger) error {
		offer, err := l.requests.ServiceOfferByRequestHash(hash)
		out = offer
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Node) listRequests(list func(*requests.Engine) ([][32]byte, error)) ([][32]byte, error) {
	var out [][32]byte
	err := n.read(func(l *ledger) error {
		hashes, err := list(l.requests)
		out = hashes
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Node) GetAllRequests() ([][32]byte, error) {
	return n.listRequests(func(e *requests.Engine) ([][32]byte, error) { return e.GetAllRequests() })
}

func (n *Node) GetRequestsByCountry(country string) ([][32]byte, error) {
	return n.listRequests(func(e *requests.Engine) ([][32]byte, error) { return e.GetRequestsByCountry(country) })
}

func (n *Node) GetRequestsByCountryCity(country, city string) ([][32]byte, error) {
	return n.listRequests(func(e *requests.Engine) ([][32]byte, error) {
		return e.GetRequestsByCountryCity(country, city)
	})
}

func (n *Node) GetRequestsByRequesterAddress(requester [20]byte) ([][32]byte, error) {
	return n.listRequests(func(e *requests.Engine) ([][32]byte, error) {
		return e.GetRequestsByRequesterAddress(requester)
	})
}

func (n *Node) GetRequestCount() (uint64, error) {
	var out uint64
	err := n.read(func(l *ledger) error {
		count, err := l.requests.GetRequestCount()
		out = count
		return err
	})
	return out, err
}

// --- Curation ---

func (n *Node) CurateLab(caller, lab [20]byte) error {
	return n.executeAs(caller, common.ModuleCuration, "curateLab", func(l *ledger) error {
		return l.curation.CurateLab(caller, lab)
	})
}

func (n *Node) UncurateLab(caller, lab [20]byte) error {
	return n.executeAs(caller, common.ModuleCuration, "uncurateLab", func(l *ledger) error {
		return l.curation.UncurateLab(caller, lab)
	})
}

func (n *Node) IsCurated(lab [20]byte) (bool, error) {
	var out bool
	err := n.read(func(l *ledger) error {
		curated, err := l.curation.IsCurated(lab)
		out = curated
		return err
	})
	return out, err
}

// --- Escrow ---

func (n *Node) PayOrder(caller [20]byte, p escrow.Payment) (*escrow.Order, error) {
	var out *escrow.Order
	err := n.executeAs(caller, common.ModuleEscrow, "payOrder", func(l *ledger) error {
		order, err := l.escrow.PayOrder(caller, p)
		out = order
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Node) FulfillOrder(caller [20]byte, id [32]byte) (*escrow.Order, error) {
	var out *escrow.Order
	err := n.executeAs(caller, common.ModuleEscrow, "fulfillOrder", func(l *ledger) error {
		order, err := l.escrow.FulfillOrder(caller, id)
		out = order
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Node) RefundOrder(caller [20]byte, id [32]byte) (*escrow.Order, error) {
	var out *escrow.Order
	err := n.executeAs(caller, common.ModuleEscrow, "refundOrder", func(l *ledger) error {
		order, err := l.escrow.RefundOrder(caller, id)
		out = order
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Node) GetOrderByOrderID(id [32]byte) (*escrow.Order, error) {
	var out *escrow.Order
	err := n.read(func(l *ledger) error {
		order, err := l.escrow.GetOrderByOrderID(id)
		out = order
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// --- Token ---

func (n *Node) Transfer(caller, to [20]byte, amount *big.Int) error {
	return n.executeAs(caller, common.ModuleToken, "transfer", func(l *ledger) error {
		if err := common.Guard(n.pauses, common.ModuleToken); err != nil {
			return err
		}
		return l.token.Transfer(caller, to, amount)
	})
}

func (n *Node) Approve(caller, spender [20]byte, amount *big.Int) error {
	return n.executeAs(caller, common.ModuleToken, "approve", func(l *ledger) error {
		if err := common.Guard(n.pauses, common.ModuleToken); err != nil {
			return err
		}
		return l.token.Approve(caller, spender, amount)
	})
}

// Mint credits amount to the recipient from the operator faucet.
func (n *Node) Mint(to [20]byte, amount *big.Int) error {
	if !n.cfg.FaucetEnabled {
		return ErrFaucetDisabled
	}
	return n.execute(common.ModuleToken, "mint", func(l *ledger) error {
		if err := common.Guard(n.pauses, common.ModuleToken); err != nil {
			return err
		}
		return l.token.Mint(to, amount, "faucet")
	})
}

func (n *Node) BalanceOf(owner [20]byte) (*big.Int, error) {
	var out *big.Int
	err := n.read(func(l *ledger) error {
		bal, err := l.token.BalanceOf(owner)
		out = bal
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Node) Allowance(owner, spender [20]byte) (*big.Int, error) {
	var out *big.Int
	err := n.read(func(l *ledger) error {
		allowance, err := l.token.Allowance(owner, spender)
		out = allowance
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// --- Event log ---

// EventsSince returns up to limit committed events after cursor.
func (n *Node) EventsSince(cursor uint64, limit int) ([]types.EventRecord, error) {
	var out []types.EventRecord
	err := n.read(func(l *ledger) error {
		records, err := l.manager.EventsSince(cursor, limit)
		out = records
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
