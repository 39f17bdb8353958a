package accessory

import (
	"fmt"
	"strconv"
	"strings"
)

// ID addresses a characteristic by accessory and instance identifier.
type ID struct {
	AID uint64
	IID uint64
}

// String returns "aid.iid".
func (id ID) String() string {
	return strconv.FormatUint(id.AID, 10) + "." + strconv.FormatUint(id.IID, 10)
}

// ParseID parses "aid.iid".
func ParseID(s string) (ID, error) {
	a, i, ok := strings.Cut(s, ".")
	if !ok {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	aid, err := strconv.ParseUint(a, 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	iid, err := strconv.ParseUint(i, 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return ID{AID: aid, IID: iid}, nil
}

// JoinIDs formats ids as the comma separated list used in query strings.
func JoinIDs(ids []ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}
