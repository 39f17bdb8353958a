package catalog

import (
	"fmt"

	"github.com/backkem/hap/pkg/hap"
)

var (
	// ErrUnknownLabel is returned by Encode for enum labels not in the table.
	ErrUnknownLabel = fmt.Errorf("catalog: unknown enum label: %w", hap.ErrValidation)

	// ErrInvalidValue is returned by Encode for values the entry cannot
	// represent.
	ErrInvalidValue = fmt.Errorf("catalog: invalid value: %w", hap.ErrValidation)

	// ErrInvalidColor is returned for colors that are not #RRGGBB.
	ErrInvalidColor = fmt.Errorf("catalog: invalid color: %w", hap.ErrValidation)

	// ErrInvalidExtension is returned for malformed vendor extension files.
	ErrInvalidExtension = fmt.Errorf("catalog: invalid vendor extension: %w", hap.ErrDecode)
)
