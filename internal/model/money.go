package model

import "fmt"

// Cents is a monetary amount in minor currency units (e.g. US cents).
// All ledger arithmetic is integer arithmetic so distributions can be
// reconciled exactly against order totals.
type Cents int64

// Display formats the amount as a dollar string for logs and responses.
func (c Cents) Display() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s$%d.%02d", sign, v/100, v%100)
}

// BasisPoints expresses a share of revenue in 1/100ths of a percent.
// 10000 basis points = 100%. Integer shares make the "splits sum to 100%"
// invariant an exact equality instead of a float comparison.
type BasisPoints int64

// FullShare is the whole of a settled amount, in basis points.
const FullShare BasisPoints = 10000

// ApplyTo returns the share of total this percentage represents, rounded
// toward zero. Callers are responsible for assigning the truncation
// remainder somewhere explicit.
func (bp BasisPoints) ApplyTo(total Cents) Cents {
	return Cents(int64(total) * int64(bp) / int64(FullShare))
}

// Percent renders basis points as a human percentage, e.g. 1950 -> "19.5%".
func (bp BasisPoints) Percent() string {
	whole := bp / 100
	frac := bp % 100
	if frac == 0 {
		return fmt.Sprintf("%d%%", whole)
	}
	if frac%10 == 0 {
		return fmt.Sprintf("%d.%d%%", whole, frac/10)
	}
	return fmt.Sprintf("%d.%02d%%", whole, frac)
}
