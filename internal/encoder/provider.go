package encoder

// Provider is the interface every encoder backend implements. The SPI
// provider talks to the encoders directly; the serial provider goes through
// a microcontroller bridge; the demo provider simulates a user spinning the
// globe.
type Provider interface {
	// Name returns the human-readable name of this provider.
	Name() string
	// Connect opens the underlying bus and verifies communication.
	Connect() error
	// Close releases the bus.
	Close() error
	// IsConnected returns whether the provider has an active connection.
	IsConnected() bool

	// ReadFrames performs bus I/O only: one raw frame per axis, latitude
	// first. Parity checking and conditioning happen in the caller.
	// It may block on the hardware transaction; callers bound it.
	ReadFrames() (lat, lon Frame, err error)
}
