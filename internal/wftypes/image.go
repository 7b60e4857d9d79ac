package wftypes

import (
	specsv1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/warpforge/engine/internal/wfdigest"
)

// LayerMediaType enumerates the layer media types the image store supports
// unpacking (spec 4.A "Supported layer media types"). Zstd is out of scope.
type LayerMediaType int

const (
	LayerMediaUnknown LayerMediaType = iota
	LayerMediaTar
	LayerMediaTarGzip
	LayerMediaDockerTar
	LayerMediaDockerTarGzip
)

// ClassifyLayerMediaType maps an OCI/Docker media type string to the layer
// kinds this engine knows how to extract.
func ClassifyLayerMediaType(mediaType string) LayerMediaType {
	switch mediaType {
	case specsv1.MediaTypeImageLayer:
		return LayerMediaTar
	case specsv1.MediaTypeImageLayerGzip:
		return LayerMediaTarGzip
	case "application/vnd.docker.image.rootfs.diff.tar":
		return LayerMediaDockerTar
	case "application/vnd.docker.image.rootfs.diff.tar.gzip":
		return LayerMediaDockerTarGzip
	default:
		return LayerMediaUnknown
	}
}

// Gzipped reports whether the media type requires gzip decoding before tar
// extraction.
func (k LayerMediaType) Gzipped() bool {
	return k == LayerMediaTarGzip || k == LayerMediaDockerTarGzip
}

// Layer is one entry of ImageData.Layers, parallel to manifest.layers.
type Layer struct {
	MediaType LayerMediaType
	DiffID    wfdigest.Digest // uncompressed-tar digest, from image config
	Digest    wfdigest.Digest // compressed-blob digest, from the manifest
	Bytes     []byte
}

// ImageData is the fully-resolved image: manifest, layers, and config.
type ImageData struct {
	Manifest       specsv1.Manifest
	ManifestDigest wfdigest.Digest
	Layers         []Layer
	Config         specsv1.Image
}
