package pipeline

import (
	"context"

	"github.com/backmassage/meshbatch/internal/assets"
	"github.com/backmassage/meshbatch/internal/config"
)

// imageMIMEPrefix is the sniffed type required of textures when
// options.verifyTextureContent is set.
const imageMIMEPrefix = "image/"

// DiscoverGeometry returns the glTF/GLB files under the geometry folder in
// deterministic order. The texture destination is pruned.
func DiscoverGeometry(ctx context.Context, cfg config.Config) ([]*assets.SourceFile, error) {
	return assets.Scan(ctx, cfg.GeometryDir(), assets.Query{
		Patterns: assets.GeometryPatterns,
		Exclude:  []string{cfg.TextureDir()},
	})
}

// DiscoverTextures returns the texture files still nested under the texture
// source tree, i.e. everything outside the flat destination.
func DiscoverTextures(ctx context.Context, cfg config.Config) ([]*assets.SourceFile, error) {
	q := assets.Query{
		Patterns: assets.TexturePatterns,
		Exclude:  []string{cfg.TextureDir()},
	}
	if cfg.Options.VerifyTextureContent {
		q.Sniff = []string{imageMIMEPrefix}
	}
	return assets.Scan(ctx, cfg.TextureSourceDir(), q)
}

// DiscoverArtifacts returns the batch artifacts currently in the batch
// output folder. A missing folder yields an *assets.NotFoundError.
func DiscoverArtifacts(ctx context.Context, cfg config.Config) ([]*assets.SourceFile, error) {
	return assets.Scan(ctx, cfg.BatchOutputDir(), assets.Query{
		Patterns: assets.ArtifactPatterns,
		Flat:     true,
	})
}
