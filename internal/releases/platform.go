package releases

import "strings"

const (
	// AssetsPlatform is the pseudo-platform of the shared game data bundle.
	AssetsPlatform = "assets"

	// ChecksumSuffix is appended to an asset URL or name to address its
	// checksum file.
	ChecksumSuffix = ".sha256"

	debugBuildMarker = "_releasedbg"
)

// PlatformFromAssetName derives the platform key from an asset filename:
// everything from the first dot is dropped, then the debug build marker.
//
//	windows_x64_releasedbg.zip -> windows_x64
//	assets.zip                 -> assets
func PlatformFromAssetName(name string) string {
	platform, _, _ := strings.Cut(name, ".")
	platform, _, _ = strings.Cut(platform, debugBuildMarker)
	return platform
}

// IsChecksumFile reports whether name is a checksum companion file rather
// than a downloadable artifact.
func IsChecksumFile(name string) bool {
	return strings.HasSuffix(name, ChecksumSuffix)
}
