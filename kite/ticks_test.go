package kite_test

import (
	"encoding/binary"
	"testing"

	"github.com/kitetick/engine/kite"
)

func appendU16(buf []byte, v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return append(buf, b...)
}

func appendU32(buf []byte, v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return append(buf, b...)
}

func appendI32(buf []byte, v int32) []byte {
	return appendU32(buf, uint32(v))
}

func buildLTPPacket(token int32, lastPricePaise int32) []byte {
	var p []byte
	p = appendI32(p, token)
	p = appendI32(p, lastPricePaise)
	return p
}

func buildQuote28Packet(token int32, lastPricePaise, highPaise, lowPaise, openPaise, closePaise, changePaise int32) []byte {
	var p []byte
	p = appendI32(p, token)
	p = appendI32(p, lastPricePaise)
	p = appendI32(p, highPaise)
	p = appendI32(p, lowPaise)
	p = appendI32(p, openPaise)
	p = appendI32(p, closePaise)
	p = appendI32(p, changePaise)
	return p
}

func appendDepthLevel(p []byte, qty uint32, pricePaise int32, orders uint16) []byte {
	p = appendU32(p, qty)
	p = appendI32(p, pricePaise)
	p = append(p, byte(orders>>8), byte(orders))
	p = append(p, 0, 0) // reserved
	return p
}

func buildFull184Packet(token int32, lastPricePaise int32, bestBidPaise, bestAskPaise int32) []byte {
	var p []byte
	p = appendI32(p, token)
	p = appendI32(p, lastPricePaise)
	p = appendU32(p, 10)              // last qty
	p = appendI32(p, lastPricePaise)  // avg price
	p = appendU32(p, 1000)            // volume
	p = appendU32(p, 500)             // total buy qty
	p = appendU32(p, 600)             // total sell qty
	p = appendI32(p, lastPricePaise)  // open
	p = appendI32(p, lastPricePaise+100) // high
	p = appendI32(p, lastPricePaise-100) // low
	p = appendI32(p, lastPricePaise-50)  // close

	p = appendU32(p, 1700000000) // last trade time
	p = appendU32(p, 12345)      // OI
	p = appendU32(p, 13000)      // OI day high
	p = appendU32(p, 11000)      // OI day low
	p = appendU32(p, 1700000001) // exchange timestamp

	p = appendDepthLevel(p, 10, bestBidPaise, 2)
	for i := 0; i < 4; i++ {
		p = appendDepthLevel(p, 0, 0, 0)
	}
	p = appendDepthLevel(p, 20, bestAskPaise, 3)
	for i := 0; i < 4; i++ {
		p = appendDepthLevel(p, 0, 0, 0)
	}
	return p
}

func buildQuote44Packet(token int32, lastPricePaise int32, closePaise int32) []byte {
	var p []byte
	p = appendI32(p, token)
	p = appendI32(p, lastPricePaise)
	p = appendU32(p, 10)          // last qty
	p = appendI32(p, lastPricePaise) // avg price
	p = appendU32(p, 1000)        // volume
	p = appendU32(p, 500)         // total buy qty
	p = appendU32(p, 600)         // total sell qty
	p = appendI32(p, lastPricePaise) // open
	p = appendI32(p, lastPricePaise+100) // high
	p = appendI32(p, lastPricePaise-100) // low
	p = appendI32(p, closePaise)  // close
	return p
}

func frameOf(packets ...[]byte) []byte {
	var frame []byte
	frame = appendU16(frame, uint16(len(packets)))
	for _, p := range packets {
		frame = appendU16(frame, uint16(len(p)))
		frame = append(frame, p...)
	}
	return frame
}

func TestDecodeBinaryTicks(t *testing.T) {
	t.Run("LTP_PriceScaledFromPaise", func(t *testing.T) {
		frame := frameOf(buildLTPPacket(256265, 2500050))
		ticks := kite.DecodeBinaryTicks(frame, 1)
		if len(ticks) != 1 {
			t.Fatalf("expected 1 tick, got %d", len(ticks))
		}
		if ticks[0].Mode != kite.ModeLTP {
			t.Errorf("expected ModeLTP, got %v", ticks[0].Mode)
		}
		if ticks[0].LastPrice != 25000.50 {
			t.Errorf("expected 25000.50, got %v", ticks[0].LastPrice)
		}
		if ticks[0].InstrumentToken != 256265 {
			t.Errorf("expected token 256265, got %d", ticks[0].InstrumentToken)
		}
	})

	t.Run("Quote44_ChangeComputedFromClose", func(t *testing.T) {
		frame := frameOf(buildQuote44Packet(111, 10100, 10000))
		ticks := kite.DecodeBinaryTicks(frame, 2)
		if len(ticks) != 1 {
			t.Fatalf("expected 1 tick, got %d", len(ticks))
		}
		tick := ticks[0]
		if tick.Mode != kite.ModeQuote {
			t.Errorf("expected ModeQuote, got %v", tick.Mode)
		}
		wantChange := (101.0 - 100.0) / 100.0
		if diff := tick.Change - wantChange; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("expected change %v, got %v", wantChange, tick.Change)
		}
	})

	t.Run("Quote44_ZeroCloseYieldsZeroChange", func(t *testing.T) {
		frame := frameOf(buildQuote44Packet(111, 10100, 0))
		ticks := kite.DecodeBinaryTicks(frame, 3)
		if ticks[0].Change != 0 {
			t.Errorf("expected zero change on zero close, got %v", ticks[0].Change)
		}
	})

	t.Run("Quote28IndexPacket_SecondPacketAlsoParsed", func(t *testing.T) {
		// S2: two packets in one frame; first is the 28-byte QUOTE(index)
		// layout with instrument_token=256265, last_price=1999000 paise
		// (=> 19990.00), change taken straight from the wire (not computed).
		first := buildQuote28Packet(256265, 1999000, 2000000, 1995000, 1998000, 1997500, 150)
		second := buildLTPPacket(111, 5000)
		frame := frameOf(first, second)

		ticks := kite.DecodeBinaryTicks(frame, 1)
		if len(ticks) != 2 {
			t.Fatalf("expected 2 ticks, got %d", len(ticks))
		}

		idx := ticks[0]
		if idx.Mode != kite.ModeQuote {
			t.Errorf("expected ModeQuote, got %v", idx.Mode)
		}
		if idx.InstrumentToken != 256265 {
			t.Errorf("expected token 256265, got %d", idx.InstrumentToken)
		}
		if idx.LastPrice != 19990.00 {
			t.Errorf("expected last_price 19990.00, got %v", idx.LastPrice)
		}
		if !idx.HasChange || idx.Change != 1.50 {
			t.Errorf("expected change 1.50 taken directly from the wire, got has=%v val=%v", idx.HasChange, idx.Change)
		}
		if !idx.HasOhlc || idx.Ohlc.High != 20000.00 || idx.Ohlc.Low != 19950.00 || idx.Ohlc.Open != 19980.00 || idx.Ohlc.Close != 19975.00 {
			t.Errorf("unexpected OHLC for index quote packet: %+v", idx.Ohlc)
		}

		if ticks[1].InstrumentToken != 111 {
			t.Errorf("expected second packet token 111, got %d", ticks[1].InstrumentToken)
		}
	})

	t.Run("Full184Packet_DepthAndBestBidAsk", func(t *testing.T) {
		// S3: single 184-byte FULL packet with depth; decoder must emit
		// best_bid/best_ask from depth.Buy[0]/Sell[0].
		frame := frameOf(buildFull184Packet(256265, 10000, 9990, 10010))
		ticks := kite.DecodeBinaryTicks(frame, 1)
		if len(ticks) != 1 {
			t.Fatalf("expected 1 tick, got %d", len(ticks))
		}

		tick := ticks[0]
		if tick.Mode != kite.ModeFull {
			t.Errorf("expected ModeFull, got %v", tick.Mode)
		}
		if !tick.HasDepth {
			t.Fatal("expected depth to be present")
		}
		if tick.Depth.Buy[0].Price != 99.90 {
			t.Errorf("expected best bid 99.90, got %v", tick.Depth.Buy[0].Price)
		}
		if tick.Depth.Sell[0].Price != 100.10 {
			t.Errorf("expected best ask 100.10, got %v", tick.Depth.Sell[0].Price)
		}
		if !tick.HasOpenInterest || tick.OpenInterest != 12345 {
			t.Errorf("expected OI 12345, got has=%v val=%v", tick.HasOpenInterest, tick.OpenInterest)
		}

		store := kite.NewTickStore()
		store.UpdateTick(tick)
		st, _ := store.GetState(256265)
		if !st.Derived.HasSpread {
			t.Fatal("expected spread to be computed from the FULL packet's depth")
		}
		wantSpread := 100.10 - 99.90
		if diff := st.Derived.Spread - wantSpread; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("expected spread %v, got %v", wantSpread, st.Derived.Spread)
		}
		wantSpreadBps := (wantSpread / tick.LastPrice) * 10000.0
		if !st.Derived.HasSpreadBps {
			t.Fatal("expected spread_bps to be computed")
		}
		if diff := st.Derived.SpreadBps - wantSpreadBps; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("expected spread_bps %v, got %v", wantSpreadBps, st.Derived.SpreadBps)
		}
	})

	t.Run("Full184PacketTruncatedTo120Bytes_ReturnsZeroTicks", func(t *testing.T) {
		// S4: frame declares a 184-byte packet (the length prefix says so)
		// but the buffer ends after only 120 of those bytes — simulating a
		// mid-depth-section TCP truncation. The parser must stop cleanly
		// and return zero ticks rather than read past the buffer.
		full := buildFull184Packet(256265, 10000, 9990, 10010)
		var frame []byte
		frame = appendU16(frame, 1)
		frame = appendU16(frame, uint16(len(full)))
		frame = append(frame, full[:120]...)

		ticks := kite.DecodeBinaryTicks(frame, 1)
		if len(ticks) != 0 {
			t.Errorf("expected 0 ticks from a 184-byte packet truncated to 120 bytes, got %d", len(ticks))
		}
	})

	t.Run("MultiplePacketsInOneFrame", func(t *testing.T) {
		frame := frameOf(buildLTPPacket(1, 100), buildLTPPacket(2, 200))
		ticks := kite.DecodeBinaryTicks(frame, 1)
		if len(ticks) != 2 {
			t.Fatalf("expected 2 ticks, got %d", len(ticks))
		}
	})

	t.Run("UnknownPacketLengthIsSkippedNotPanicked", func(t *testing.T) {
		oddPacket := make([]byte, 13) // not one of 8/28/44/184
		frame := frameOf(oddPacket, buildLTPPacket(5, 500))
		ticks := kite.DecodeBinaryTicks(frame, 1)
		if len(ticks) != 1 {
			t.Fatalf("expected the unknown packet to be skipped, leaving 1 tick, got %d", len(ticks))
		}
		if ticks[0].InstrumentToken != 5 {
			t.Errorf("expected the surviving tick to be token 5, got %d", ticks[0].InstrumentToken)
		}
	})

	t.Run("TruncatedFrameStopsCleanly", func(t *testing.T) {
		frame := frameOf(buildLTPPacket(1, 100))
		truncated := frame[:len(frame)-3]
		ticks := kite.DecodeBinaryTicks(truncated, 1)
		if len(ticks) != 0 {
			t.Errorf("expected 0 ticks from a truncated frame, got %d", len(ticks))
		}
	})

	t.Run("EmptyFrameReturnsNoTicks", func(t *testing.T) {
		ticks := kite.DecodeBinaryTicks(nil, 1)
		if len(ticks) != 0 {
			t.Errorf("expected 0 ticks for nil payload, got %d", len(ticks))
		}
	})

	t.Run("ZeroPacketCountReturnsNoTicks", func(t *testing.T) {
		frame := frameOf()
		ticks := kite.DecodeBinaryTicks(frame, 1)
		if len(ticks) != 0 {
			t.Errorf("expected 0 ticks for a zero-packet frame, got %d", len(ticks))
		}
	})
}
