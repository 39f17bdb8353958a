package tlv

import (
	"fmt"

	"github.com/backkem/hap/pkg/hap"
)

var (
	// ErrTruncated is returned when an item header or value runs past the
	// end of the input.
	ErrTruncated = fmt.Errorf("tlv: truncated item: %w", hap.ErrDecode)

	// ErrMissingItem is returned by Map.Require when a required item is
	// absent.
	ErrMissingItem = fmt.Errorf("tlv: missing item: %w", hap.ErrDecode)

	// ErrItemSize is returned when an item has the wrong length for its type.
	ErrItemSize = fmt.Errorf("tlv: unexpected item size: %w", hap.ErrDecode)
)
