package backtest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/papertrader/market"
)

var csvHeader = []string{"time", "open", "high", "low", "close", "volume"}

// ReadCSV reads candles from rows of time,open,high,low,close[,volume].
// Time is RFC3339 or unix seconds. A leading header row is skipped.
func ReadCSV(r io.Reader) ([]market.Candle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var (
		out  []market.Candle
		line int
	)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(row) == 0 {
			continue
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "time") {
			continue
		}
		c, err := parseCSVRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, c)
	}
	if err := market.ValidateSeries(out); err != nil {
		return nil, err
	}
	return out, nil
}

func parseCSVRow(row []string) (market.Candle, error) {
	if len(row) < 5 {
		return market.Candle{}, fmt.Errorf("need at least 5 cols time,open,high,low,close: %v", row)
	}
	ts, err := parseCSVTime(strings.TrimSpace(row[0]))
	if err != nil {
		return market.Candle{}, err
	}

	vals := make([]float64, 5)
	for i := 1; i < len(row) && i <= 5; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		if err != nil {
			return market.Candle{}, fmt.Errorf("bad %s %q: %w", csvHeader[i], row[i], err)
		}
		vals[i-1] = v
	}
	return market.Candle{
		Time:   ts,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

func parseCSVTime(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("bad time %q: %w", s, err)
	}
	return t.Unix(), nil
}

func ReadCSVFile(path string) ([]market.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// WriteCSV writes candles with a header row, times in RFC3339 UTC.
func WriteCSV(w io.Writer, candles []market.Candle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, c := range candles {
		err := cw.Write([]string{
			c.Timestamp().Format(time.RFC3339),
			f(c.Open), f(c.High), f(c.Low), f(c.Close), f(c.Volume),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
