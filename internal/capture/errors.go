package capture

import "errors"

var (
	// ErrJoin is returned when the interface cannot be resolved or the group join fails.
	ErrJoin = errors.New("unable to join multicast group")
	// ErrReceive is returned when the socket fails while no stop was requested.
	ErrReceive = errors.New("error listening to multicast group")
)
