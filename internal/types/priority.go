package types

import (
	"fmt"
	"strings"
)

// FeeTier определяет уровень приоритетной комиссии.
type FeeTier string

const (
	FeeTierLow      FeeTier = "low"
	FeeTierMedium   FeeTier = "medium"
	FeeTierHigh     FeeTier = "high"
	FeeTierVeryHigh FeeTier = "veryHigh"
)

// Цены в micro-lamports за compute unit.
const (
	LowMicroLamports      uint64 = 1_000
	MediumMicroLamports   uint64 = 10_000
	HighMicroLamports     uint64 = 100_000
	VeryHighMicroLamports uint64 = 1_000_000
)

var tierPrices = map[FeeTier]uint64{
	FeeTierLow:      LowMicroLamports,
	FeeTierMedium:   MediumMicroLamports,
	FeeTierHigh:     HighMicroLamports,
	FeeTierVeryHigh: VeryHighMicroLamports,
}

// Known reports whether the tier is one of the four documented tiers.
func (t FeeTier) Known() bool {
	_, ok := tierPrices[t]
	return ok
}

// MicroLamports возвращает цену compute unit для уровня.
// Неизвестный уровень трактуется как Medium.
func (t FeeTier) MicroLamports() uint64 {
	if price, ok := tierPrices[t]; ok {
		return price
	}
	return MediumMicroLamports
}

// ParseFeeTier нормализует строку из конфигурации. Неизвестные значения
// возвращаются как есть, чтобы резолвер мог применить fallback и залогировать его.
func ParseFeeTier(s string) FeeTier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return FeeTierLow
	case "medium", "":
		return FeeTierMedium
	case "high":
		return FeeTierHigh
	case "veryhigh", "very_high", "very-high":
		return FeeTierVeryHigh
	default:
		return FeeTier(s)
	}
}

// TransactionMode определяет, какие compute budget инструкции добавляются.
type TransactionMode string

const (
	ModePriorityFee TransactionMode = "priority_fee"
	ModeJitoBundle  TransactionMode = "jito_bundle"
	ModeNone        TransactionMode = "none"
)

// ParseTransactionMode разбирает режим из конфигурации.
func ParseTransactionMode(s string) (TransactionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "priority_fee", "priority", "priorityfee", "":
		return ModePriorityFee, nil
	case "jito_bundle", "jito", "jitobundle":
		return ModeJitoBundle, nil
	case "none":
		return ModeNone, nil
	default:
		return "", fmt.Errorf("unknown transaction mode %q", s)
	}
}

// DispatchConfig передается явно в каждый вызов dispatch.
type DispatchConfig struct {
	Mode TransactionMode
	Tier FeeTier
}

// DefaultDispatchConfig - priority fee со средним уровнем.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{Mode: ModePriorityFee, Tier: FeeTierMedium}
}
