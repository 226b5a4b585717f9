// Package catalogcsv ingests Kite's daily instrument-dump CSV and keeps a
// local zstd-compressed cache of it. FetchAndCache always downloads the full
// file and rewrites the cache; LoadFromCache parses the cached copy without
// a network call, but nothing decides between the two automatically.
//
// Ticks themselves are never persisted here — only the catalog (instrument
// metadata), which changes at most a few times a day.
package catalogcsv

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/klauspost/compress/zstd"

	"github.com/kitetick/engine/internal/dao"
	"github.com/kitetick/engine/internal/requests"
)

// InstrumentCSVRow mirrors Kite's instruments dump column names.
type InstrumentCSVRow struct {
	InstrumentToken int32   `csv:"instrument_token"`
	TradingSymbol   string  `csv:"tradingsymbol"`
	Name            string  `csv:"name"`
	TickSize        float64 `csv:"tick_size"`
	LotSize         int32   `csv:"lot_size"`
	InstrumentType  string  `csv:"instrument_type"`
	Segment         string  `csv:"segment"`
	Exchange        string  `csv:"exchange"`
	Expiry          string  `csv:"expiry"`
	Strike          float64 `csv:"strike"`
}

func compress(input []byte) ([]byte, error) {
	var b bytes.Buffer
	encoder, err := zstd.NewWriter(&b, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, err
	}
	if _, err := encoder.Write(input); err != nil {
		encoder.Close()
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decompress(input []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(bytes.NewReader(input))
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(decoder); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// saveCache writes raw CSV bytes to path as a single length-prefixed
// zstd-compressed block.
func saveCache(path string, data []byte) error {
	compressed, err := compress(data)
	if err != nil {
		return err
	}

	header := make([]byte, 8)
	binary.BigEndian.PutUint64(header, uint64(len(compressed)))

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(header); err != nil {
		return err
	}
	_, err = f.Write(compressed)
	return err
}

// loadCache reads back what saveCache wrote.
func loadCache(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]byte, 8)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint64(header)

	compressed := make([]byte, size)
	if _, err := io.ReadFull(f, compressed); err != nil {
		return nil, err
	}

	return decompress(compressed)
}

// FetchAndCache downloads the instruments CSV from url, caches a compressed
// copy at cachePath, and parses it into rows.
func FetchAndCache(ctx context.Context, url, cachePath string) ([]InstrumentCSVRow, error) {
	body, code, err := requests.Get(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("catalogcsv: fetch: %w", err)
	}
	if code != 200 {
		return nil, fmt.Errorf("catalogcsv: fetch: HTTP %d", code)
	}

	if err := saveCache(cachePath, body); err != nil {
		return nil, fmt.Errorf("catalogcsv: cache write: %w", err)
	}

	return parseCSV(body)
}

// LoadFromCache parses a previously cached CSV, skipping the network call.
func LoadFromCache(cachePath string) ([]InstrumentCSVRow, error) {
	body, err := loadCache(cachePath)
	if err != nil {
		return nil, fmt.Errorf("catalogcsv: cache read: %w", err)
	}
	return parseCSV(body)
}

func parseCSV(body []byte) ([]InstrumentCSVRow, error) {
	var rows []InstrumentCSVRow
	if err := gocsv.UnmarshalBytes(body, &rows); err != nil {
		return nil, fmt.Errorf("catalogcsv: parse: %w", err)
	}
	return rows, nil
}

// ToUpsertRows adapts parsed CSV rows to the DAO's upsert shape.
func ToUpsertRows(rows []InstrumentCSVRow) []dao.InstrumentUpsertRow {
	out := make([]dao.InstrumentUpsertRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, dao.InstrumentUpsertRow{
			InstrumentToken: r.InstrumentToken,
			TradingSymbol:   r.TradingSymbol,
			Name:            r.Name,
			TickSize:        r.TickSize,
			LotSize:         r.LotSize,
			InstrumentType:  r.InstrumentType,
			Segment:         r.Segment,
			Exchange:        r.Exchange,
			Expiry:          r.Expiry,
			Strike:          r.Strike,
		})
	}
	return out
}
