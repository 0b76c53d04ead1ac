package main

import (
	"fmt"
	"reflect"

	"github.com/kalefund/fundgate/internal/model"
	"github.com/kalefund/fundgate/internal/oracle"
	"github.com/kalefund/fundgate/internal/repository"
	"github.com/kalefund/fundgate/internal/risk"
)

func main() {
	var store repository.Store = repository.NewMemoryStore()
	t := reflect.TypeOf(store)

	fmt.Println("--- Store Methods ---")
	for i := 0; i < t.NumMethod(); i++ {
		method := t.Method(i)
		fmt.Printf("Method: %s\n", method.Name)
	}

	// 各风险档位的默认配置
	fmt.Println("\n--- Default Allocations ---")
	for _, profile := range model.AllRiskProfiles() {
		alloc := risk.DefaultAllocation(profile)
		fmt.Printf("%s: KALE=%d BTC=%d USDC=%d XLM=%d\n",
			profile, alloc.KaleBps, alloc.BtcBps, alloc.UsdcBps, alloc.XlmBps)
	}

	fmt.Println("\n--- Default Prices ---")
	for _, asset := range model.SupportedAssets() {
		fmt.Printf("%s: %s\n", asset, oracle.DefaultPrice(asset))
	}
}
