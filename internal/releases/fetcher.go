package releases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
	"golang.org/x/sync/errgroup"

	"github.com/digitalpulse/tsom-api/internal/telemetry"
)

// DefaultChecksumConcurrency bounds the checksum requests in flight for one
// release.
const DefaultChecksumConcurrency = 8

const (
	kindGame    = "game"
	kindUpdater = "updater"
)

// Fetcher resolves the latest game and updater releases.
type Fetcher struct {
	gameRepo    Repo
	updaterRepo Repo
	releases    ReleaseSource
	checksums   ChecksumSource
	concurrency int
	logger      *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithChecksumConcurrency bounds concurrent checksum requests per release.
// Values below 1 keep the default.
func WithChecksumConcurrency(n int) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithLogger sets the logger used for skipped releases and tolerated
// checksum failures.
func WithLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher returns a Fetcher reading gameRepo and updaterRepo.
func NewFetcher(gameRepo, updaterRepo Repo, releases ReleaseSource, checksums ChecksumSource, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		gameRepo:    gameRepo,
		updaterRepo: updaterRepo,
		releases:    releases,
		checksums:   checksums,
		concurrency: DefaultChecksumConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type versionedRelease struct {
	version *version.Version
	Release
}

// LatestGameRelease resolves the newest stable game release. Platforms
// missing from it, the assets bundle included, are back-filled from the
// newest older release that has them.
func (f *Fetcher) LatestGameRelease(ctx context.Context) (*GameRelease, error) {
	start := time.Now()
	rel, err := f.latestGameRelease(ctx)
	f.observe(kindGame, start, err)
	return rel, err
}

func (f *Fetcher) latestGameRelease(ctx context.Context) (*GameRelease, error) {
	listed, err := f.releases.ListReleases(ctx, f.gameRepo)
	if err != nil {
		return nil, fmt.Errorf("failed to list releases of %s: %w", f.gameRepo, err)
	}

	eligible := f.eligibleReleases(listed)
	if len(eligible) == 0 {
		return nil, fmt.Errorf("%s: %w", f.gameRepo, ErrNoReleaseFound)
	}

	latest := eligible[0]
	binaries, err := f.resolveAssets(ctx, latest, nil)
	if err != nil {
		return nil, err
	}

	// Each older release may only fill platforms no newer release provided,
	// so releases are merged one after the other.
	for _, older := range eligible[1:] {
		filled, err := f.resolveAssets(ctx, older, binaries)
		if err != nil {
			return nil, err
		}
		if len(filled) == 0 {
			f.logger.Debug("older release provides no missing platform",
				"repo", f.gameRepo.String(), "version", older.version.String())
			continue
		}
		maps.Copy(binaries, filled)
	}

	assets, ok := binaries[AssetsPlatform]
	if !ok {
		return nil, fmt.Errorf("%s: no release ships an assets bundle: %w", f.gameRepo, ErrNoReleaseFound)
	}
	delete(binaries, AssetsPlatform)

	return &GameRelease{
		Version:       latest.version,
		Assets:        assets,
		AssetsVersion: assets.Version,
		Binaries:      binaries,
	}, nil
}

// LatestUpdaterRelease resolves every platform build of the latest updater
// release. Older releases are never consulted.
func (f *Fetcher) LatestUpdaterRelease(ctx context.Context) (Assets, error) {
	start := time.Now()
	assets, err := f.latestUpdaterRelease(ctx)
	f.observe(kindUpdater, start, err)
	return assets, err
}

func (f *Fetcher) latestUpdaterRelease(ctx context.Context) (Assets, error) {
	rel, err := f.releases.LatestRelease(ctx, f.updaterRepo)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest release of %s: %w", f.updaterRepo, err)
	}
	if rel.Prerelease || rel.Draft {
		return nil, fmt.Errorf("%s: latest release %q is not stable: %w", f.updaterRepo, rel.TagName, ErrNoReleaseFound)
	}

	v, err := parseTag(rel.TagName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", f.updaterRepo, err, ErrInvalidVersion)
	}

	return f.resolveAssets(ctx, versionedRelease{version: v, Release: rel}, nil)
}

// eligibleReleases drops prereleases, drafts and releases whose tag is not a
// semantic version, and orders the rest newest first.
func (f *Fetcher) eligibleReleases(listed []Release) []versionedRelease {
	eligible := make([]versionedRelease, 0, len(listed))
	for _, rel := range listed {
		if rel.Prerelease || rel.Draft {
			continue
		}
		v, err := parseTag(rel.TagName)
		if err != nil {
			f.logger.Debug("skipping release with unparsable tag", "repo", f.gameRepo.String(), "tag", rel.TagName)
			continue
		}
		eligible = append(eligible, versionedRelease{version: v, Release: rel})
	}

	slices.SortStableFunc(eligible, func(a, b versionedRelease) int {
		return b.version.Compare(a.version)
	})
	return eligible
}

// parseTag parses a release tag as a semantic version. An optional leading
// "v" is allowed, but the version core must have exactly three numeric
// components: go-version would otherwise pad "1.0" to "1.0.0".
func parseTag(tag string) (*version.Version, error) {
	v, err := version.NewSemver(tag)
	if err != nil {
		return nil, fmt.Errorf("tag %q: %w", tag, err)
	}
	core := strings.TrimPrefix(tag, "v")
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	if strings.Count(core, ".") != 2 {
		return nil, fmt.Errorf("tag %q is not a full semantic version", tag)
	}
	return v, nil
}

// resolveAssets turns the artifacts of rel into platform assets with their
// checksums, skipping checksum files and platforms already present in known.
// Checksums are fetched concurrently. An unreachable checksum file leaves the
// digest empty; any other checksum failure aborts.
func (f *Fetcher) resolveAssets(ctx context.Context, rel versionedRelease, known Assets) (Assets, error) {
	type pending struct {
		platform string
		asset    Asset
	}

	var todo []pending
	for _, ra := range rel.Assets {
		if IsChecksumFile(ra.Name) {
			continue
		}
		platform := PlatformFromAssetName(ra.Name)
		if _, ok := known[platform]; ok {
			continue
		}
		todo = append(todo, pending{
			platform: platform,
			asset: Asset{
				Size:        ra.Size,
				Name:        ra.Name,
				Version:     rel.version,
				DownloadURL: ra.DownloadURL,
			},
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i := range todo {
		g.Go(func() error {
			asset := &todo[i].asset
			sum, err := f.checksums.ResolveAsset(gctx, *asset)
			if err == nil {
				asset.SHA256 = &sum
				return nil
			}

			if IsTransportError(err) {
				telemetry.ChecksumFailuresTotal.WithLabelValues("transport").Inc()
				f.logger.Warn("checksum unavailable, serving asset without digest",
					"asset", asset.Name, "version", rel.version.String(), "error", err)
				return nil
			}

			reason := "mismatch"
			var invalid *InvalidSha256Error
			if errors.As(err, &invalid) {
				reason = "malformed"
			}
			telemetry.ChecksumFailuresTotal.WithLabelValues(reason).Inc()
			return fmt.Errorf("checksum of %s %s: %w", asset.Name, rel.version, err)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	resolved := make(Assets, len(todo))
	for _, p := range todo {
		resolved[p.platform] = p.asset
	}
	return resolved, nil
}

func (f *Fetcher) observe(kind string, start time.Time, err error) {
	telemetry.ReleaseFetchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.ReleaseFetchErrorsTotal.WithLabelValues(kind).Inc()
	}
}
