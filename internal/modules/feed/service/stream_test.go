package service

import (
	"testing"
	"time"
)

func testClient() *Client {
	return NewClient(Config{
		WSURL:     "ws://127.0.0.1:0/stream",
		Symbols:   []string{"EURUSD"},
		Timeframe: "15m",
	}, nil, nil, nil)
}

func TestParseRowConfirmedCandle(t *testing.T) {
	c := testClient()

	row := []string{"1700000000000", "1.1000", "1.1050", "1.0990", "1.1020", "1234.5", "1"}
	candle, ok := c.parseRow("EURUSD", row)
	if !ok {
		t.Fatal("confirmed row rejected")
	}
	if candle.Symbol != "EURUSD" || candle.Timeframe != "15m" {
		t.Fatalf("unexpected candle meta: %+v", candle)
	}
	if candle.Open != 1.1000 || candle.High != 1.1050 || candle.Low != 1.0990 || candle.Close != 1.1020 {
		t.Fatalf("unexpected OHLC: %+v", candle)
	}
	if want := candle.Start.Add(15 * time.Minute); !candle.End.Equal(want) {
		t.Fatalf("End = %s, want Start+15m", candle.End)
	}
}

func TestParseRowSkipsUnconfirmed(t *testing.T) {
	c := testClient()

	row := []string{"1700000000000", "1.1000", "1.1050", "1.0990", "1.1020", "1234.5", "0"}
	if _, ok := c.parseRow("EURUSD", row); ok {
		t.Fatal("unconfirmed candle must be skipped")
	}
}

func TestParseRowRejectsGarbage(t *testing.T) {
	c := testClient()

	cases := [][]string{
		{"1700000000000", "1.10", "1.11", "1.09", "1.10", "1"},         // короткая строка
		{"not-a-ts", "1.10", "1.11", "1.09", "1.10", "1.0", "1"},       // кривой timestamp
		{"1700000000000", "1.10", "x", "1.09", "1.10", "1.0", "1"},     // кривая цена
		{"1700000000000", "1.10", "1.09", "1.11", "1.10", "1.0", "1"},  // high < low
		{"1700000000000", "1.10", "1.11", "1.09", "-1.10", "1.0", "1"}, // цена <= 0
	}
	for i, row := range cases {
		if _, ok := c.parseRow("EURUSD", row); ok {
			t.Fatalf("case %d: garbage row admitted", i)
		}
	}
}

func TestAdmitKeepsEndStrictlyIncreasing(t *testing.T) {
	c := testClient()

	first, _ := c.parseRow("EURUSD", []string{"1700000000000", "1.10", "1.11", "1.09", "1.10", "1.0", "1"})
	if !c.admit(first) {
		t.Fatal("first candle rejected")
	}
	if c.admit(first) {
		t.Fatal("duplicate candle admitted")
	}

	older := first
	older.End = first.End.Add(-15 * time.Minute)
	if c.admit(older) {
		t.Fatal("out-of-order candle admitted")
	}

	next := first
	next.End = first.End.Add(15 * time.Minute)
	if !c.admit(next) {
		t.Fatal("next candle rejected")
	}
}
