package enums

import "fmt"

// DepositKind maps to the deposit_kind column on batches.
type DepositKind string

const (
	DepositKindBottle DepositKind = "bottle"
	DepositKindCrate  DepositKind = "crate"
	DepositKindKeg    DepositKind = "keg"
	DepositKindOther  DepositKind = "other"
)

var validDepositKinds = []DepositKind{
	DepositKindBottle,
	DepositKindCrate,
	DepositKindKeg,
	DepositKindOther,
}

func (k DepositKind) String() string {
	return string(k)
}

// IsValid reports whether the value matches a known deposit kind.
func (k DepositKind) IsValid() bool {
	for _, candidate := range validDepositKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseDepositKind converts raw input into DepositKind.
func ParseDepositKind(value string) (DepositKind, error) {
	for _, candidate := range validDepositKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid deposit kind %q", value)
}
