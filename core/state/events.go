package state

import (
	"fmt"
	"sort"

	"labledger/core/types"
)

type storedAttribute struct {
	Key   string
	Value string
}

type storedEvent struct {
	Sequence   uint64
	Timestamp  uint64
	Type       string
	Attributes []storedAttribute
}

// LastEventSequence returns the sequence of the newest logged event, or zero
// when the log is empty.
func (m *Manager) LastEventSequence() (uint64, error) {
	var head uint64
	if _, err := m.KVGet(eventHeadKey, &head); err != nil {
		return 0, err
	}
	return head, nil
}

// AppendEvent assigns the next sequence number to evt and persists it.
func (m *Manager) AppendEvent(evt *types.Event, timestamp int64) (types.EventRecord, error) {
	if evt == nil {
		return types.EventRecord{}, fmt.Errorf("events: nil event")
	}
	head, err := m.LastEventSequence()
	if err != nil {
		return types.EventRecord{}, err
	}
	seq := head + 1
	keys := make([]string, 0, len(evt.Attributes))
	for k := range evt.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	stored := storedEvent{Sequence: seq, Timestamp: toStoredTime(timestamp), Type: evt.Type}
	for _, k := range keys {
		stored.Attributes = append(stored.Attributes, storedAttribute{Key: k, Value: evt.Attributes[k]})
	}
	if err := m.KVPut(eventRecordKey(seq), &stored); err != nil {
		return types.EventRecord{}, err
	}
	if err := m.KVPut(eventHeadKey, seq); err != nil {
		return types.EventRecord{}, err
	}
	return stored.toRecord(), nil
}

// EventsSince returns up to limit events with a sequence greater than cursor.
func (m *Manager) EventsSince(cursor uint64, limit int) ([]types.EventRecord, error) {
	head, err := m.LastEventSequence()
	if err != nil {
		return nil, err
	}
	out := make([]types.EventRecord, 0)
	if cursor >= head {
		return out, nil
	}
	for seq := cursor + 1; seq <= head; seq++ {
		if limit > 0 && len(out) >= limit {
			break
		}
		var stored storedEvent
		ok, err := m.KVGet(eventRecordKey(seq), &stored)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("events: missing record %d", seq)
		}
		out = append(out, stored.toRecord())
	}
	return out, nil
}

func (s storedEvent) toRecord() types.EventRecord {
	attrs := make(map[string]string, len(s.Attributes))
	for _, a := range s.Attributes {
		attrs[a.Key] = a.Value
	}
	return types.EventRecord{
		Sequence:  s.Sequence,
		Timestamp: int64(s.Timestamp),
		Event:     types.Event{Type: s.Type, Attributes: attrs},
	}
}
