package player

// Codec brings up the audio converter before streaming starts
type Codec interface {
	Initialize() error
}

// NopCodec is a Codec for boards or simulations with nothing to configure
type NopCodec struct{}

// Initialize does nothing
func (NopCodec) Initialize() error { return nil }
