package port

// TelegramSink receives one complete telegram per period.
// Flush must not return before the bytes were handed to the transport.
type TelegramSink interface {
	Open() error
	Write(frame []byte) error
	Flush() error
	Close() error
}

// RandomSource yields uniform draws in [0, 1). *rand.Rand from math/rand/v2 satisfies it.
type RandomSource interface {
	Float64() float64
}
