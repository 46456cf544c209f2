package utils

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"dfp/config"

	"github.com/go-resty/resty/v2"
)

// fxCache holds one fetched rate table per base currency. Rates are display
// sugar for dashboards, so a stale-but-recent table is acceptable.
type fxCache struct {
	mu        sync.Mutex
	rates     map[string]float64
	base      string
	fetchedAt time.Time
}

var ratesCache fxCache

const fxCacheTTL = time.Hour

// ConvertAmount converts an amount between currencies using the configured
// exchange-rate API. Same-currency conversions short-circuit.
func ConvertAmount(amount float64, from, to string) (float64, error) {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	if from == to {
		return amount, nil
	}

	rates, err := getRates(from)
	if err != nil {
		return 0, err
	}

	rate, ok := rates[to]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("no exchange rate for %s -> %s", from, to)
	}
	return amount * rate, nil
}

func getRates(base string) (map[string]float64, error) {
	ratesCache.mu.Lock()
	defer ratesCache.mu.Unlock()

	if ratesCache.base == base && time.Since(ratesCache.fetchedAt) < fxCacheTTL {
		return ratesCache.rates, nil
	}

	client := resty.New().SetTimeout(10 * time.Second)

	var fxResp struct {
		Result string             `json:"result"`
		Rates  map[string]float64 `json:"rates"`
	}
	resp, err := client.R().
		SetResult(&fxResp).
		Get(fmt.Sprintf("%s/%s", config.AppConfig.FxApiURL, base))
	if err != nil {
		log.Printf("[FX] Failed to fetch rates for %s: %v", base, err)
		return nil, err
	}
	if resp.StatusCode() != 200 || fxResp.Result != "success" {
		log.Printf("[FX] Rate API returned %d for %s", resp.StatusCode(), base)
		return nil, fmt.Errorf("exchange rate API returned %d", resp.StatusCode())
	}

	ratesCache.base = base
	ratesCache.rates = fxResp.Rates
	ratesCache.fetchedAt = time.Now()

	return ratesCache.rates, nil
}
