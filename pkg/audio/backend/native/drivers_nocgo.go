//go:build !cgo

// ABOUTME: Without cgo no native audio library can be linked
// ABOUTME: Probing always fails and the manager falls back to subprocess tools
package native

const noDriversReason = "built without cgo"

func defaultDrivers() []DriverFactory {
	return nil
}
