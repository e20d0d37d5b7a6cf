// Package build stamps the client's software name and version into the
// HELLO client identity string, the same softwareName/softwareVersion
// pair the original implementation threads through its bootstrap path.
package build

// Name and Version are overridden at link time via
// -ldflags "-X github.com/couchbaselabs/kvcore/internal/build.Version=...";
// the defaults below are what an unstamped build reports.
var (
	Name    = "kvcore"
	Version = "dev"
)

// UserAgent returns the "name/version" string used as the HELLO client
// identity suffix (§4.G "a client identity string (connection id + user
// agent)").
func UserAgent() string {
	return Name + "/" + Version
}
