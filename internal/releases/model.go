// Package releases resolves the latest downloadable game and updater builds
// from a release host, verifying each artifact against its companion
// checksum file.
package releases

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-version"
)

// Repo identifies a repository on the release host.
type Repo struct {
	Owner string
	Name  string
}

// NewRepo returns the repository owner/name.
func NewRepo(owner, name string) Repo {
	return Repo{Owner: owner, Name: name}
}

func (r Repo) String() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.Name)
}

// Asset is one downloadable artifact of a release. SHA256 is nil when the
// checksum file could not be reached.
type Asset struct {
	Size        int64            `json:"size"`
	Name        string           `json:"-"`
	Version     *version.Version `json:"-"`
	DownloadURL string           `json:"download_url"`
	SHA256      *string          `json:"sha256"`
}

// Assets maps a platform key to the artifact built for it.
type Assets map[string]Asset

// GameRelease is a resolved game version. Binaries may come from older
// releases when the newest one does not ship every platform, and Assets is
// the shared data bundle, possibly inherited the same way.
type GameRelease struct {
	Version       *version.Version
	Assets        Asset
	AssetsVersion *version.Version
	Binaries      Assets
}

// Release is a release as listed by the release host.
type Release struct {
	TagName    string
	Prerelease bool
	Draft      bool
	Assets     []ReleaseAsset
}

// ReleaseAsset is a file attached to a Release.
type ReleaseAsset struct {
	Name        string
	Size        int64
	DownloadURL string
}

// ReleaseSource lists releases of a repository.
type ReleaseSource interface {
	// ListReleases returns every release of repo, newest first as far as
	// the host orders them.
	ListReleases(ctx context.Context, repo Repo) ([]Release, error)
	// LatestRelease returns the release the host marks as latest. It
	// returns ErrNoReleaseFound when the repository has none.
	LatestRelease(ctx context.Context, repo Repo) (Release, error)
}

// ChecksumSource resolves the SHA-256 digest published for an asset.
// Failures to reach the checksum file must be reported as *TransportError.
type ChecksumSource interface {
	ResolveAsset(ctx context.Context, asset Asset) (string, error)
}
