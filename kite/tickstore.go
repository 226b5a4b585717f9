package kite

import (
	"hash/fnv"
	"sync"
)

// TokenState is the latest known state for one instrument token: its
// (immutable) metadata, the most recent tick, and metrics derived from it.
type TokenState struct {
	Meta       TokenMeta
	LastTick   Tick
	HasTick    bool
	Derived    DerivedMetrics
	prevTick   Tick
	hasPrev    bool
}

// DerivedMetrics are computed from a tick plus (where needed) the previous
// tick for the same token. Each field is only populated when its inputs are
// available; zero values are never used as a stand-in for "unknown".
type DerivedMetrics struct {
	BestBid      float64
	HasBestBid   bool
	BestAsk      float64
	HasBestAsk   bool
	Spread       float64
	HasSpread    bool
	SpreadBps    float64
	HasSpreadBps bool

	PriceRocPerS float64
	HasPriceRoc  bool
	OIRocPerS    float64
	HasOIRoc     bool
	VolRocPerS   float64
	HasVolRoc    bool
}

const shardCount = 32

type shard struct {
	mu     sync.RWMutex
	states map[int32]*TokenState
}

// TickStore is a concurrent map of instrument token to TokenState, sharded by
// a hash of the token so that updates to unrelated tokens never contend on
// the same lock. Writes for a single token are always serialized by its
// shard's mutex, so a reader under RLock never observes a torn Tick/Derived
// pair.
type TickStore struct {
	shards [shardCount]*shard
}

// NewTickStore returns an empty store ready for use.
func NewTickStore() *TickStore {
	s := &TickStore{}
	for i := range s.shards {
		s.shards[i] = &shard{states: make(map[int32]*TokenState)}
	}
	return s
}

func (s *TickStore) shardFor(token int32) *shard {
	h := fnv.New32a()
	b := [4]byte{byte(token >> 24), byte(token >> 16), byte(token >> 8), byte(token)}
	h.Write(b[:])
	return s.shards[h.Sum32()%shardCount]
}

// SeedMeta registers metadata for a set of tokens. A token already present
// keeps its existing entry: metadata is seeded once, never overwritten.
func (s *TickStore) SeedMeta(metas []TokenMeta) {
	for _, m := range metas {
		sh := s.shardFor(m.InstrumentToken)
		sh.mu.Lock()
		if _, exists := sh.states[m.InstrumentToken]; !exists {
			sh.states[m.InstrumentToken] = &TokenState{Meta: m}
		}
		sh.mu.Unlock()
	}
}

// UpdateTick folds a newly decoded tick into the store, computing derived
// metrics against whatever tick (if any) it replaces. If the token has never
// been seeded, it is inserted with an UNKNOWN meta rather than dropped, so
// that an un-catalogued but subscribed token is still observable.
func (s *TickStore) UpdateTick(t Tick) {
	sh := s.shardFor(t.InstrumentToken)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	st, exists := sh.states[t.InstrumentToken]
	if !exists {
		st = &TokenState{Meta: TokenMeta{InstrumentToken: t.InstrumentToken, InstrumentType: "UNKNOWN"}}
		sh.states[t.InstrumentToken] = st
	}

	derived := computeDerived(t, st.LastTick, st.HasTick)

	if st.HasTick {
		st.prevTick = st.LastTick
		st.hasPrev = true
	}
	st.LastTick = t
	st.HasTick = true
	st.Derived = derived
}

func computeDerived(cur Tick, prev Tick, hasPrev bool) DerivedMetrics {
	var d DerivedMetrics

	if cur.HasDepth {
		d.BestBid = cur.Depth.Buy[0].Price
		d.HasBestBid = true
		d.BestAsk = cur.Depth.Sell[0].Price
		d.HasBestAsk = true

		d.Spread = d.BestAsk - d.BestBid
		d.HasSpread = true
		if cur.LastPrice > 0 {
			d.SpreadBps = (d.Spread / cur.LastPrice) * 10000.0
			d.HasSpreadBps = true
		}
	}

	if !hasPrev {
		return d
	}

	dtNs := int64(cur.ReceivedNs) - int64(prev.ReceivedNs)
	dtS := float64(dtNs) / 1e9
	if dtS <= 0 {
		return d
	}

	d.PriceRocPerS = (cur.LastPrice - prev.LastPrice) / dtS
	d.HasPriceRoc = true

	if cur.HasOpenInterest && prev.HasOpenInterest {
		d.OIRocPerS = (float64(cur.OpenInterest) - float64(prev.OpenInterest)) / dtS
		d.HasOIRoc = true
	}
	if cur.HasVolume && prev.HasVolume {
		d.VolRocPerS = (float64(cur.VolumeTraded) - float64(prev.VolumeTraded)) / dtS
		d.HasVolRoc = true
	}

	return d
}

// GetState returns a copy of the current state for a token, if known.
func (s *TickStore) GetState(token int32) (TokenState, bool) {
	sh := s.shardFor(token)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	st, ok := sh.states[token]
	if !ok {
		return TokenState{}, false
	}
	return *st, true
}

// GetSymbol returns the trading symbol for a token, if known and non-empty.
func (s *TickStore) GetSymbol(token int32) (string, bool) {
	st, ok := s.GetState(token)
	if !ok || st.Meta.TradingSymbol == "" {
		return "", false
	}
	return st.Meta.TradingSymbol, true
}

// Len returns the total number of tokens tracked across all shards
// (seeded, ticked, or both).
func (s *TickStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.states)
		sh.mu.RUnlock()
	}
	return n
}

// ReceivedTokenCount returns the number of tokens that have received at
// least one tick.
func (s *TickStore) ReceivedTokenCount() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, st := range sh.states {
			if st.HasTick {
				n++
			}
		}
		sh.mu.RUnlock()
	}
	return n
}

// IsEmpty reports whether the store tracks no tokens at all.
func (s *TickStore) IsEmpty() bool {
	return s.Len() == 0
}
