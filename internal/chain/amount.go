package chain

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	courierr "github.com/mrz1836/courier/pkg/errors"
)

// ParseRawAmount parses a positive base-unit integer string exactly.
// Signs, decimal points, exponents and leading "+" are rejected.
func ParseRawAmount(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, courierr.ErrInvalidAmount
	}
	for _, c := range raw {
		if c < '0' || c > '9' {
			return nil, courierr.WithDetails(courierr.ErrInvalidAmount, map[string]string{"amount": raw})
		}
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() <= 0 {
		return nil, courierr.WithDetails(courierr.ErrInvalidAmount, map[string]string{"amount": raw})
	}
	return v, nil
}

// ToRawAmount converts a human decimal amount ("1.5") into base units for a
// token with the given decimals. More fractional digits than decimals is an
// error rather than a silent truncation.
func ToRawAmount(human string, decimals int32) (*big.Int, error) {
	human = strings.TrimSpace(human)
	if human == "" || strings.ContainsAny(human, "eE") {
		return nil, courierr.ErrInvalidAmount
	}
	d, err := decimal.NewFromString(human)
	if err != nil {
		return nil, courierr.WithCause(courierr.ErrInvalidAmount, err)
	}
	if !d.IsPositive() {
		return nil, courierr.WithDetails(courierr.ErrInvalidAmount, map[string]string{"amount": human})
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, courierr.WithDetails(courierr.ErrInvalidAmount, map[string]string{
			"amount":   human,
			"decimals": decimal.NewFromInt32(decimals).String(),
		})
	}
	return scaled.BigInt(), nil
}

// FormatRawAmount renders base units as a human decimal string with trailing
// zeros removed. For example, 1500000000000000000 with 18 decimals is "1.5".
func FormatRawAmount(raw *big.Int, decimals int32) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -decimals).String()
}

// FormatRawString is FormatRawAmount for a base-unit string. Unparseable
// input is returned unchanged.
func FormatRawString(raw string, decimals int32) string {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return raw
	}
	return FormatRawAmount(v, decimals)
}
