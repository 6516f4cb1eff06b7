package wire

import "fmt"

// ErrBadResponseLength is returned whenever a decode function receives
// fewer bytes than its frame requires, or, for ParseDacResponse, any
// length other than exactly 22 bytes.
type ErrBadResponseLength struct {
	Want int
	Got  int
}

func (e *ErrBadResponseLength) Error() string {
	return fmt.Sprintf("bad response length: want %d bytes, got %d", e.Want, e.Got)
}

func badLength(want, got int) error {
	return &ErrBadResponseLength{Want: want, Got: got}
}
