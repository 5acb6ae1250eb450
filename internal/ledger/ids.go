package ledger

import (
	"fmt"
	"regexp"
	"strings"
)

// AssetID identifies a tradable asset (e.g. "bitcoin"). Always lower-case.
type AssetID string

// UserID identifies a paper-money participant. Always lower-case.
type UserID string

var assetPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// ParseAssetID normalises and validates raw input at the boundary.
func ParseAssetID(raw string) (AssetID, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if !assetPattern.MatchString(v) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAsset, raw)
	}
	return AssetID(v), nil
}

// ParseUserID normalises and validates raw input at the boundary.
func ParseUserID(raw string) (UserID, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return "", ErrInvalidUser
	}
	return UserID(v), nil
}

func (a AssetID) String() string { return string(a) }

func (u UserID) String() string { return string(u) }
