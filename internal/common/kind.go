// kind.go - Entity kinds threaded through normalizer, matcher and store calls

package common

import (
	"fmt"
	"strings"
)

// EntityKind selects which catalog a name is resolved against
type EntityKind string

const (
	KindProduct  EntityKind = "product"
	KindSupplier EntityKind = "supplier"
)

// Kinds lists every supported kind in a stable order
var Kinds = []EntityKind{KindProduct, KindSupplier}

// ParseEntityKind accepts "product" / "supplier" in any case
func ParseEntityKind(s string) (EntityKind, error) {
	k := EntityKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
	return k, nil
}

// Valid reports whether k is one of the supported kinds
func (k EntityKind) Valid() bool {
	return k == KindProduct || k == KindSupplier
}

func (k EntityKind) String() string {
	return string(k)
}
