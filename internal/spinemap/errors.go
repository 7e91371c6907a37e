package spinemap

import (
	"errors"
	"fmt"
)

// SpineRangeError is returned when a key addresses a spine too far beyond the
// allocated range, or when the key is negative.
type SpineRangeError struct {
	Key        int // Requested key
	SpineIndex int // Spine the key maps to
	Allocated  int // Spines allocated at the time of the request
}

// Error implements the error interface.
func (e *SpineRangeError) Error() string {
	if e.Key < 0 {
		return fmt.Sprintf("spinemap: negative key %d", e.Key)
	}
	return fmt.Sprintf("spinemap: key %d addresses spine %d, only %d allocated (max %d ahead)",
		e.Key, e.SpineIndex, e.Allocated, maxSpinesAhead)
}

// IsSpineRangeError returns true if the error is a SpineRangeError.
// Uses errors.As to handle wrapped errors.
func IsSpineRangeError(err error) bool {
	var re *SpineRangeError
	return errors.As(err, &re)
}
