// Package guid derives, formats and parses 64-bit asset identifiers.
//
// An AssetGuid is derived purely from a container id (128-bit) and a
// container-local sub id. The derivation is part of the on-disk contract:
// stored references depend on it, so the constants below must never change.
package guid

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// AssetGuid identifies one content object.
type AssetGuid uint64

const (
	// Invalid is the zero id. It never identifies an object.
	Invalid AssetGuid = 0

	// ReservedBits are the two high bits used as flags.
	// Catalog ids never set them.
	ReservedBits AssetGuid = 0xC000000000000000

	// FlagDynamic marks ids allocated at runtime rather than by the catalog.
	FlagDynamic AssetGuid = 1 << 62

	// PrimarySubID is the sub id of a container's main object.
	PrimarySubID int64 = 0
)

const (
	foldMultiplier = 397
	foldOffset     = 0xCBF29CE484222325
)

// Derive returns the deterministic id for (container, sub).
//
// The container is folded as four big-endian 32-bit words, then the sub id
// is folded in. The result goes through a 64-bit finalizer and has the
// reserved bits cleared. A result of zero maps to 1.
func Derive(container uuid.UUID, sub int64) AssetGuid {
	h := uint64(foldOffset)
	for i := 0; i < 4; i++ {
		w := binary.BigEndian.Uint32(container[i*4 : i*4+4])
		h = (h ^ uint64(w)) * foldMultiplier
	}
	h = (h * foldMultiplier) ^ uint64(sub)
	h = fmix64(h)

	id := AssetGuid(h) &^ ReservedBits
	if id == Invalid {
		return 1
	}
	return id
}

// fmix64 is the MurmurHash3 64-bit finalizer.
func fmix64(h uint64) uint64 {
	h ^= h >> 33
	h *= 0xFF51AFD7ED558CCD
	h ^= h >> 33
	h *= 0xC4CEB9FE1A85EC53
	h ^= h >> 33
	return h
}

// ForRuntime derives an id for an object created at runtime from its name
// and kind. The result always carries FlagDynamic, so it can never collide
// with a catalog id.
func ForRuntime(name, kind string) AssetGuid {
	var h uint64 = 17
	for _, s := range []string{kind, name} {
		for i := 0; i < len(s); i++ {
			h = h*31 + uint64(s[i])
		}
		h = h*31 + '/'
	}
	return (AssetGuid(h) &^ ReservedBits) | FlagDynamic
}

// IsValid reports whether id is not Invalid.
func (id AssetGuid) IsValid() bool {
	return id != Invalid
}

// IsCatalogID reports whether id is valid and carries no reserved bits.
func (id AssetGuid) IsCatalogID() bool {
	return id.IsValid() && id&ReservedBits == 0
}

// IsDynamic reports whether id was allocated at runtime.
func (id AssetGuid) IsDynamic() bool {
	return id&FlagDynamic != 0
}

// String returns the canonical bracketed form.
func (id AssetGuid) String() string {
	return Format(id)
}

// Format returns the canonical text form of id, e.g. "[0123456789ABCDEF]".
func Format(id AssetGuid) string {
	return fmt.Sprintf("[%016X]", uint64(id))
}
