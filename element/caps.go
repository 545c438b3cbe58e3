package element

// Cap is a capability tag used to look elements up in a pool.
type Cap string

// Audio capabilities.
const (
	CapAudioCopy         Cap = "audio.copy"
	CapAudioBitConvert   Cap = "audio.bit_convert"
	CapAudioChConvert    Cap = "audio.channel_convert"
	CapAudioRateConvert  Cap = "audio.rate_convert"
	CapAudioDeinterleave Cap = "audio.deinterleave"
	CapAudioInterleave   Cap = "audio.interleave"
	CapAudioEncoder      Cap = "audio.encoder"
	CapAudioDecoder      Cap = "audio.decoder"
)

// IO capabilities.
const (
	CapIORead  Cap = "io.read"
	CapIOWrite Cap = "io.write"
)

// HasCap reports whether caps contain c.
func HasCap(caps []Cap, c Cap) bool {
	for _, have := range caps {
		if have == c {
			return true
		}
	}
	return false
}
