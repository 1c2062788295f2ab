//go:build a0

package wire

// Default returns the codec for the adapter this build targets.
func Default() Codec { return PrefixCodec{} }
