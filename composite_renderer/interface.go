package composite_renderer

import "bytes"

type Renderer interface {
	// TileImages decodes every image and lays them out left to right, top to
	// bottom on a near-square grid, returned as PNG.
	TileImages(images [][]byte) (*bytes.Buffer, error)
}
