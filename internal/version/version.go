// ABOUTME: Build and product identification
// ABOUTME: Reported by the version command and the --version flag
package version

const (
	// Version is the release version
	Version = "0.3.0"

	// Product is the display name
	Product = "Wavedeck"
)
