package primitives

import "fmt"

// NanosPerUnit is the number of nano-units in one coin unit.
const NanosPerUnit int64 = 1_000_000_000

// Amount is a signed count of nano-units. Transaction values, UTXO values
// and the block reward are all expressed as Amount so arithmetic never
// touches floating point.
type Amount struct {
	Nanos int64 `json:"nanos"`
}

// NewAmount builds an Amount from a whole-unit count.
func NewAmount(units int64) Amount {
	return Amount{Nanos: units * NanosPerUnit}
}

// AmountFromNanos builds an Amount directly from a nano-unit count.
func AmountFromNanos(nanos int64) Amount {
	return Amount{Nanos: nanos}
}

func (a Amount) Add(b Amount) Amount { return Amount{Nanos: a.Nanos + b.Nanos} }
func (a Amount) Sub(b Amount) Amount { return Amount{Nanos: a.Nanos - b.Nanos} }

func (a Amount) LessThan(b Amount) bool    { return a.Nanos < b.Nanos }
func (a Amount) GreaterThan(b Amount) bool { return a.Nanos > b.Nanos }
func (a Amount) Equal(b Amount) bool       { return a.Nanos == b.Nanos }
func (a Amount) IsNegative() bool          { return a.Nanos < 0 }
func (a Amount) IsZero() bool              { return a.Nanos == 0 }

func (a Amount) String() string {
	whole := a.Nanos / NanosPerUnit
	frac := a.Nanos % NanosPerUnit
	if frac < 0 {
		frac = -frac
	}
	return fmt.Sprintf("%d.%09d", whole, frac)
}

// SumAmounts adds a slice of amounts, returning the zero Amount for an
// empty slice.
func SumAmounts(amounts []Amount) Amount {
	var total Amount
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
