package enums

import "fmt"

// UndoScope selects which ledger rows an undo request may target.
type UndoScope string

const (
	// UndoScopeGlobal targets the newest purchase system-wide.
	UndoScopeGlobal UndoScope = "global"
	// UndoScopeUser targets the newest purchase of the acting user.
	UndoScopeUser UndoScope = "user"
)

var validUndoScopes = []UndoScope{
	UndoScopeGlobal,
	UndoScopeUser,
}

// IsValid reports whether the value matches a known undo scope.
func (s UndoScope) IsValid() bool {
	for _, candidate := range validUndoScopes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseUndoScope converts raw input into UndoScope.
func ParseUndoScope(value string) (UndoScope, error) {
	for _, candidate := range validUndoScopes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid undo scope %q", value)
}
