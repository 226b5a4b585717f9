package kite

import (
	"encoding/binary"
	"time"
)

// TickMode is the subscription depth the server sent for a packet.
type TickMode int

const (
	ModeLTP TickMode = iota
	ModeQuote
	ModeFull
)

func (m TickMode) String() string {
	switch m {
	case ModeLTP:
		return "LTP"
	case ModeQuote:
		return "QUOTE"
	case ModeFull:
		return "FULL"
	default:
		return "UNKNOWN"
	}
}

type Ohlc struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
}

type DepthLevel struct {
	Quantity uint32
	Price    float64
	Orders   uint16
}

type MarketDepth struct {
	Buy  [5]DepthLevel
	Sell [5]DepthLevel
}

// TokenMeta is immutable, seeded once per instrument.
type TokenMeta struct {
	InstrumentToken int32
	TradingSymbol   string
	InstrumentType  string // e.g. "CE", "PE", "INDEX", "UNKNOWN"
	Expiry          string // yyyy-mm-dd, empty if not applicable
	HasExpiry       bool
	Strike          float64
	HasStrike       bool
}

// Tick is an immutable value per market-data update.
type Tick struct {
	InstrumentToken int32
	Mode            TickMode
	LastPrice       float64

	LastQuantity       uint32
	HasLastQuantity    bool
	AverageTradedPrice float64
	HasAvgPrice        bool
	VolumeTraded       uint32
	HasVolume          bool
	TotalBuyQuantity   uint32
	HasTotalBuy        bool
	TotalSellQuantity  uint32
	HasTotalSell       bool
	Ohlc               Ohlc
	HasOhlc            bool
	Change             float64
	HasChange          bool

	LastTradeTime     uint32
	HasLastTradeTime  bool
	OpenInterest      uint32
	HasOpenInterest   bool
	OIDayHigh         uint32
	HasOIDayHigh      bool
	OIDayLow          uint32
	HasOIDayLow       bool
	ExchangeTimestamp uint32
	HasExchangeTime   bool
	Depth             MarketDepth
	HasDepth          bool

	// Process-local receipt time, UNIX nanoseconds.
	ReceivedNs uint64
}

func newLTPTick(token int32, lastPrice float64, receivedNs uint64) Tick {
	return Tick{
		InstrumentToken: token,
		Mode:            ModeLTP,
		LastPrice:       lastPrice,
		ReceivedNs:      receivedNs,
	}
}

// NowUnixNs is the hot-path timestamp helper used by the websocket read loop.
func NowUnixNs() uint64 {
	return uint64(time.Now().UnixNano())
}

// DecodeBinaryTicks parses one Kite binary frame into zero or more Ticks.
//
// Frame layout (big-endian): uint16 n_packets, then for each packet a
// uint16 length prefix followed by that many payload bytes. Unknown packet
// lengths are skipped; a frame truncated anywhere stops cleanly and returns
// whatever complete packets were parsed so far. Never panics.
func DecodeBinaryTicks(payload []byte, receivedNs uint64) []Tick {
	var out []Tick
	if len(payload) < 2 {
		return out
	}

	offset := 0
	nPackets, ok := readU16(payload, &offset)
	if !ok {
		return out
	}

	for i := uint16(0); i < nPackets; i++ {
		packetLen, ok := readU16(payload, &offset)
		if !ok {
			break
		}
		n := int(packetLen)
		if offset+n > len(payload) {
			break
		}
		packet := payload[offset : offset+n]
		offset += n

		if t, ok := decodePacket(packet, receivedNs); ok {
			out = append(out, t)
		}
	}

	return out
}

func decodePacket(packet []byte, receivedNs uint64) (Tick, bool) {
	if len(packet) < 8 {
		return Tick{}, false
	}

	offset := 0
	tokenU32, _ := readU32(packet, &offset)
	instrumentToken := int32(tokenU32)

	lastPriceI32, _ := readI32(packet, &offset)
	lastPrice := float64(lastPriceI32) / 100.0

	switch len(packet) {
	case 8:
		return newLTPTick(instrumentToken, lastPrice, receivedNs), true

	case 28:
		high, _ := readI32(packet, &offset)
		low, _ := readI32(packet, &offset)
		open, _ := readI32(packet, &offset)
		closeV, _ := readI32(packet, &offset)
		change, _ := readI32(packet, &offset)

		return Tick{
			InstrumentToken: instrumentToken,
			Mode:            ModeQuote,
			LastPrice:       lastPrice,
			Ohlc: Ohlc{
				Open:  float64(open) / 100.0,
				High:  float64(high) / 100.0,
				Low:   float64(low) / 100.0,
				Close: float64(closeV) / 100.0,
			},
			HasOhlc:    true,
			Change:     float64(change) / 100.0,
			HasChange:  true,
			ReceivedNs: receivedNs,
		}, true

	case 44:
		lastQty, _ := readU32(packet, &offset)
		avg, _ := readI32(packet, &offset)
		volume, _ := readU32(packet, &offset)
		buyQty, _ := readU32(packet, &offset)
		sellQty, _ := readU32(packet, &offset)
		open, _ := readI32(packet, &offset)
		high, _ := readI32(packet, &offset)
		low, _ := readI32(packet, &offset)
		closeV, _ := readI32(packet, &offset)

		closeRupees := float64(closeV) / 100.0
		var change float64
		if closeRupees != 0 {
			change = (lastPrice - closeRupees) / closeRupees
		}

		return Tick{
			InstrumentToken:    instrumentToken,
			Mode:               ModeQuote,
			LastPrice:          lastPrice,
			LastQuantity:       lastQty,
			HasLastQuantity:    true,
			AverageTradedPrice: float64(avg) / 100.0,
			HasAvgPrice:        true,
			VolumeTraded:       volume,
			HasVolume:          true,
			TotalBuyQuantity:   buyQty,
			HasTotalBuy:        true,
			TotalSellQuantity:  sellQty,
			HasTotalSell:       true,
			Ohlc: Ohlc{
				Open:  float64(open) / 100.0,
				High:  float64(high) / 100.0,
				Low:   float64(low) / 100.0,
				Close: closeRupees,
			},
			HasOhlc:    true,
			Change:     change,
			HasChange:  true,
			ReceivedNs: receivedNs,
		}, true

	case 184:
		lastQty, _ := readU32(packet, &offset)
		avg, _ := readI32(packet, &offset)
		volume, _ := readU32(packet, &offset)
		buyQty, _ := readU32(packet, &offset)
		sellQty, _ := readU32(packet, &offset)
		open, _ := readI32(packet, &offset)
		high, _ := readI32(packet, &offset)
		low, _ := readI32(packet, &offset)
		closeV, _ := readI32(packet, &offset)

		lastTradeTime, _ := readU32(packet, &offset)
		oi, _ := readU32(packet, &offset)
		oiDayHigh, _ := readU32(packet, &offset)
		oiDayLow, _ := readU32(packet, &offset)
		exchangeTs, _ := readU32(packet, &offset)

		var depth MarketDepth
		for i := 0; i < 5; i++ {
			q, _ := readU32(packet, &offset)
			p, _ := readI32(packet, &offset)
			orders, _ := readU16(packet, &offset)
			_, _ = readU16(packet, &offset) // reserved
			depth.Buy[i] = DepthLevel{Quantity: q, Price: float64(p) / 100.0, Orders: orders}
		}
		for i := 0; i < 5; i++ {
			q, _ := readU32(packet, &offset)
			p, _ := readI32(packet, &offset)
			orders, _ := readU16(packet, &offset)
			_, _ = readU16(packet, &offset) // reserved
			depth.Sell[i] = DepthLevel{Quantity: q, Price: float64(p) / 100.0, Orders: orders}
		}

		closeRupees := float64(closeV) / 100.0
		var change float64
		if closeRupees != 0 {
			change = (lastPrice - closeRupees) / closeRupees
		}

		return Tick{
			InstrumentToken:    instrumentToken,
			Mode:               ModeFull,
			LastPrice:          lastPrice,
			LastQuantity:       lastQty,
			HasLastQuantity:    true,
			AverageTradedPrice: float64(avg) / 100.0,
			HasAvgPrice:        true,
			VolumeTraded:       volume,
			HasVolume:          true,
			TotalBuyQuantity:   buyQty,
			HasTotalBuy:        true,
			TotalSellQuantity:  sellQty,
			HasTotalSell:       true,
			Ohlc: Ohlc{
				Open:  float64(open) / 100.0,
				High:  float64(high) / 100.0,
				Low:   float64(low) / 100.0,
				Close: closeRupees,
			},
			HasOhlc:           true,
			Change:            change,
			HasChange:         true,
			LastTradeTime:     lastTradeTime,
			HasLastTradeTime:  true,
			OpenInterest:      oi,
			HasOpenInterest:   true,
			OIDayHigh:         oiDayHigh,
			HasOIDayHigh:      true,
			OIDayLow:          oiDayLow,
			HasOIDayLow:       true,
			ExchangeTimestamp: exchangeTs,
			HasExchangeTime:   true,
			Depth:             depth,
			HasDepth:          true,
			ReceivedNs:        receivedNs,
		}, true

	default:
		// Unknown packet size: the wire format only defines the four
		// lengths above. Ignore safely rather than guessing a layout.
		return Tick{}, false
	}
}

func readU16(buf []byte, offset *int) (uint16, bool) {
	if *offset+2 > len(buf) {
		return 0, false
	}
	v := binary.BigEndian.Uint16(buf[*offset : *offset+2])
	*offset += 2
	return v, true
}

func readU32(buf []byte, offset *int) (uint32, bool) {
	if *offset+4 > len(buf) {
		return 0, false
	}
	v := binary.BigEndian.Uint32(buf[*offset : *offset+4])
	*offset += 4
	return v, true
}

func readI32(buf []byte, offset *int) (int32, bool) {
	v, ok := readU32(buf, offset)
	return int32(v), ok
}
