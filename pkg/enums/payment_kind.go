package enums

// PaymentKind tells manual payments apart from the lump payment a settlement writes.
type PaymentKind string

const (
	PaymentKindManual     PaymentKind = "manual"
	PaymentKindSettlement PaymentKind = "settlement"
)

// IsValid reports whether the value matches a known payment kind.
func (k PaymentKind) IsValid() bool {
	return k == PaymentKindManual || k == PaymentKindSettlement
}
