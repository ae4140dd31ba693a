package core

import (
	"context"
	"fmt"
	"sync"

	ledgerstate "labledger/core/state"
	"labledger/core/types"
	"labledger/observability"
)

// eventStreamBuffer bounds each subscriber channel. Slow subscribers miss
// live events and are expected to resume from the persisted log by cursor.
const eventStreamBuffer = 64

func cloneEventRecord(record types.EventRecord) types.EventRecord {
	cloned := record
	if evt := record.Event.Clone(); evt != nil {
		cloned.Event = *evt
	}
	return cloned
}

// publishEvents fans committed records out to live subscribers. Callers hold
// stateMu so records are delivered in commit order.
func (n *Node) publishEvents(records []types.EventRecord) {
	if n == nil || len(records) == 0 {
		return
	}
	n.streamMu.Lock()
	defer n.streamMu.Unlock()
	for _, record := range records {
		for _, ch := range n.streamSubs {
			select {
			case ch <- cloneEventRecord(record):
			default:
				observability.Events().RecordDropped()
			}
		}
	}
}

// SubscribeEvents registers a subscriber for committed events. The returned
// backlog holds every persisted event after cursor and the channel carries
// events committed afterwards. Cancel is safe to call more than once and is
// invoked automatically when ctx is done.
func (n *Node) SubscribeEvents(ctx context.Context, cursor uint64) (<-chan types.EventRecord, func(), []types.EventRecord, error) {
	if n == nil {
		return nil, nil, nil, fmt.Errorf("node not initialised")
	}
	updates := make(chan types.EventRecord, eventStreamBuffer)

	// Holding the read lock keeps commits out while the backlog is read and
	// the subscriber registered, so no event falls between the two.
	n.stateMu.RLock()
	backlog, err := ledgerstate.NewManager(n.db).EventsSince(cursor, 0)
	if err != nil {
		n.stateMu.RUnlock()
		return nil, nil, nil, err
	}
	n.streamMu.Lock()
	if n.streamSubs == nil {
		n.streamSubs = make(map[uint64]chan types.EventRecord)
	}
	id := n.streamNextID
	n.streamNextID++
	n.streamSubs[id] = updates
	n.streamMu.Unlock()
	observability.Events().SubscriberDelta(1)
	n.stateMu.RUnlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.streamMu.Lock()
			sub, ok := n.streamSubs[id]
			if ok {
				delete(n.streamSubs, id)
				close(sub)
			}
			n.streamMu.Unlock()
			if ok {
				observability.Events().SubscriberDelta(-1)
			}
		})
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return updates, cancel, backlog, nil
}
