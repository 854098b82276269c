package inventory

import (
	"strings"
	"time"
)

// Location is where an asset physically (or virtually) lives.
type Location string

const (
	LocationNone        Location = ""
	LocationFirstFloor  Location = "1st Floor"
	LocationSecondFloor Location = "2nd Floor"
	LocationThirdFloor  Location = "3rd Floor"
	LocationFourthFloor Location = "4th Floor"
	LocationWarehouse   Location = "Warehouse"
	LocationVirtualRoom Location = "Virtual Room"
)

// Locations lists every non-empty location.
func Locations() []Location {
	return []Location{
		LocationFirstFloor,
		LocationSecondFloor,
		LocationThirdFloor,
		LocationFourthFloor,
		LocationWarehouse,
		LocationVirtualRoom,
	}
}

// ParseLocation matches s case-insensitively against the known locations.
func ParseLocation(s string) (Location, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return LocationNone, true
	}
	for _, l := range Locations() {
		if strings.EqualFold(string(l), s) {
			return l, true
		}
	}
	return LocationNone, false
}

// Asset is one tracked item.
type Asset struct {
	ID            string
	OwnerName     string
	DisplayName   string
	Specification string
	Brand         string
	Status        string
	Location      Location

	// Identifier is unique and immutable once set. Empty only for legacy rows
	// awaiting backfill.
	Identifier string

	QRArtifactRef      *string
	BarcodeArtifactRef *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AssetGroup is every asset held by one owner.
type AssetGroup struct {
	Owner  string
	Assets []Asset
}

// NormalizeOwner canonicalizes an owner name for storage and lookups.
// Owner matching is exact after trimming; case is preserved for display.
func NormalizeOwner(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
