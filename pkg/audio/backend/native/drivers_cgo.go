//go:build cgo

// ABOUTME: Platform driver list for cgo builds
// ABOUTME: malgo first for full duplex, oto as a playback-only fallback
package native

const noDriversReason = ""

func defaultDrivers() []DriverFactory {
	return []DriverFactory{
		func() Driver { return NewMalgoDriver() },
		func() Driver { return NewOtoDriver() },
	}
}
