package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"medvault/core/state"
)

const (
	keyHead     = "meta:event_head"
	prefixEvent = "evt:"
)

var errStop = errors.New("stop")

type head struct {
	Seq  uint64 `json:"seq"`
	Hash string `json:"hash"`
}

func eventKey(seq uint64) string {
	return fmt.Sprintf("%s%020d", prefixEvent, seq)
}

// Append sequences ev after the current head, links it to the previous hash
// and stages it on tx.
func Append(tx *state.Tx, ev Event, at time.Time) (Event, error) {
	var h head
	if _, err := tx.Load(keyHead, &h); err != nil {
		return Event{}, err
	}
	ev.Seq = h.Seq + 1
	ev.PrevHash = h.Hash
	ev.Timestamp = at.UTC()
	hash, err := computeHash(ev)
	if err != nil {
		return Event{}, err
	}
	ev.Hash = hash
	if err := tx.Store(eventKey(ev.Seq), ev); err != nil {
		return Event{}, err
	}
	if err := tx.Store(keyHead, head{Seq: ev.Seq, Hash: ev.Hash}); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Head returns the sequence number and hash of the latest event.
func Head(tx *state.Tx) (uint64, string, error) {
	var h head
	_, err := tx.Load(keyHead, &h)
	return h.Seq, h.Hash, err
}

// List returns up to limit events with Seq >= from, oldest first.
func List(tx *state.Tx, from uint64, limit int) ([]Event, error) {
	out := []Event{}
	err := tx.Scan(prefixEvent, func(key string, raw []byte) error {
		if limit > 0 && len(out) >= limit {
			return errStop
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		if ev.Seq < from {
			return nil
		}
		out = append(out, ev)
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	return out, nil
}

// VerifyChain recomputes every hash and link. It returns the sequence number
// of the first broken event, or 0 if the chain is intact.
func VerifyChain(tx *state.Tx) (uint64, error) {
	prev := ""
	var broken uint64
	err := tx.Scan(prefixEvent, func(key string, raw []byte) error {
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		want, err := computeHash(ev)
		if err != nil {
			return err
		}
		if ev.PrevHash != prev || ev.Hash != want {
			broken = ev.Seq
			return errStop
		}
		prev = ev.Hash
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return 0, err
	}
	return broken, nil
}
