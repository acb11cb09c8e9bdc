package integrate

import "errors"

// ErrLengthExceeded is returned by sequence insert/delete when the
// requested range runs past the container's current length (spec §7).
var ErrLengthExceeded = errors.New("length exceeded")

// ErrUnexpectedContent is returned when an insert value's runtime type
// is none of the accepted variants (spec §7).
var ErrUnexpectedContent = errors.New("unexpected content")
