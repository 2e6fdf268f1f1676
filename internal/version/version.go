// Package version holds build metadata stamped at release time.
package version

// Version is the application version. Overridden at build time via
// -ldflags "-X github.com/aristath/datafeed/internal/version.Version=…".
var Version = "dev"
