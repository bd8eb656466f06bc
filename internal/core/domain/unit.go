package domain

import "github.com/shopspring/decimal"

// Unit is the unit of measure an ingredient's stock is recorded in.
type Unit string

const (
	UnitKilogram   Unit = "kg"
	UnitGram       Unit = "g"
	UnitLiter      Unit = "L"
	UnitMilliliter Unit = "mL"
	UnitCount      Unit = "un"
)

type unitKind int

const (
	kindMass unitKind = iota
	kindVolume
	kindCount
)

// factorToCanonical maps every unit onto its dimension's canonical unit:
// kilogram for mass, liter for volume. Count units have no scale.
var unitTable = map[Unit]struct {
	kind   unitKind
	factor decimal.Decimal
}{
	UnitKilogram:   {kindMass, decimal.NewFromInt(1)},
	UnitGram:       {kindMass, decimal.New(1, -3)},
	UnitLiter:      {kindVolume, decimal.NewFromInt(1)},
	UnitMilliliter: {kindVolume, decimal.New(1, -3)},
	UnitCount:      {kindCount, decimal.NewFromInt(1)},
}

// KnownUnit reports whether u is one of the supported units.
func KnownUnit(u Unit) bool {
	_, ok := unitTable[u]
	return ok
}

// Convert rescales quantity from one unit to another. Mass converts
// through kilograms and volume through liters; the two canonical units
// bridge 1:1 (batch arithmetic runs in kilograms and water-density
// ingredients are planned by that convention). Count units convert only
// to themselves.
func Convert(quantity decimal.Decimal, from, to Unit) (decimal.Decimal, error) {
	if from == to {
		return quantity, nil
	}

	fi, ok := unitTable[from]
	if !ok {
		return decimal.Zero, &ConversionError{From: from, To: to}
	}
	ti, ok := unitTable[to]
	if !ok {
		return decimal.Zero, &ConversionError{From: from, To: to}
	}

	if fi.kind == kindCount || ti.kind == kindCount {
		return decimal.Zero, &ConversionError{From: from, To: to}
	}

	return quantity.Mul(fi.factor).Div(ti.factor), nil
}
