package releases

import (
	"errors"
	"fmt"
)

var (
	// ErrNoReleaseFound is returned when no eligible release exists, or no
	// eligible release ever shipped an assets bundle.
	ErrNoReleaseFound = errors.New("no release found")
	// ErrInvalidVersion is returned when the latest updater release is not
	// tagged with a semantic version.
	ErrInvalidVersion = errors.New("release tag is not a valid semantic version")
	// ErrWrongChecksum is returned when a checksum file names another file.
	ErrWrongChecksum = errors.New("checksum file does not describe the asset")
)

// InvalidSha256Error reports a checksum file that is not made of exactly a
// digest and a filename.
type InvalidSha256Error struct {
	Count int
}

func (e *InvalidSha256Error) Error() string {
	return fmt.Sprintf("malformed checksum file: expected 2 fields, got %d", e.Count)
}

// TransportError wraps a failure to retrieve a checksum file.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is, or wraps, a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
