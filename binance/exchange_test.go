// Copyright (c) 2025 BVK Chaitanya

package binance

import (
	"context"
	"encoding/json"
	"os"
	"testing"
)

var (
	testingKey    string
	testingSecret string
)

func checkCredentials() bool {
	type Credentials struct {
		Key    string
		Secret string
	}
	if len(testingKey) != 0 && len(testingSecret) != 0 {
		return true
	}
	data, err := os.ReadFile("binance-creds.json")
	if err != nil {
		return false
	}
	s := new(Credentials)
	if err := json.Unmarshal(data, s); err != nil {
		return false
	}
	testingKey = s.Key
	testingSecret = s.Secret
	return len(testingKey) != 0 && len(testingSecret) != 0
}

func TestExchange(t *testing.T) {
	if !checkCredentials() {
		t.Skip("no credentials")
		return
	}

	ctx := context.Background()

	ex, err := NewExchange(ctx, testingKey, testingSecret, nil /* opts */)
	if err != nil {
		t.Fatal(err)
	}
	defer ex.Close()

	ticker, err := ex.GetPrice(ctx, "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if !ticker.Price.IsPositive() {
		t.Fatalf("unexpected ticker: %+v", ticker)
	}

	unsupported, err := ex.CheckSymbols(ctx, []string{"BTCUSDT", "NOSUCHCOIN"})
	if err != nil {
		t.Fatal(err)
	}
	if len(unsupported) != 1 || unsupported[0] != "NOSUCHCOIN" {
		t.Fatalf("unexpected unsupported symbols: %v", unsupported)
	}

	balance, err := ex.GetBalance(ctx, "USDT")
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("USDT balance: free=%s locked=%s", balance.Free, balance.Locked)
}
