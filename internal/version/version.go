// ABOUTME: Build version strings reported by voicectl
// ABOUTME: Version is overridden at link time with -ldflags "-X"
package version

// Version is the release version, "dev" for local builds
var Version = "dev"

// Product names the tool in the version banner
const Product = "Sendspin Voice"

// String renders the version banner printed by voicectl -version
func String() string {
	return Product + " " + Version
}
