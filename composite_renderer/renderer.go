package composite_renderer

import (
	"bytes"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"math"

	"github.com/go-errors/errors"
)

var (
	ErrNoImages     = errors.New("no images to tile")
	ErrSizeMismatch = errors.New("images are not the same size")
)

type rendererImpl struct {
	maxImages int
}

type Config struct {
	// MaxImages caps how many images go into one composite. Zero means no cap.
	MaxImages int
}

func New(cfg Config) (Renderer, error) {
	if cfg.MaxImages < 0 {
		return nil, errors.New("invalid max images")
	}

	return &rendererImpl{maxImages: cfg.MaxImages}, nil
}

// Grid returns the column and row count used for n images.
func Grid(n int) (cols, rows int) {
	if n <= 0 {
		return 0, 0
	}

	cols = int(math.Ceil(math.Sqrt(float64(n))))
	rows = (n + cols - 1) / cols

	return cols, rows
}

func (r *rendererImpl) TileImages(imageData [][]byte) (*bytes.Buffer, error) {
	if len(imageData) == 0 {
		return nil, ErrNoImages
	}

	if r.maxImages > 0 && len(imageData) > r.maxImages {
		imageData = imageData[:r.maxImages]
	}

	images := make([]image.Image, len(imageData))

	for i, data := range imageData {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, errors.WrapPrefix(err, "decoding image", 0)
		}

		images[i] = img
	}

	cell := images[0].Bounds().Size()

	for _, img := range images {
		if img.Bounds().Size() != cell {
			return nil, ErrSizeMismatch
		}
	}

	cols, rows := Grid(len(images))

	retImage := image.NewRGBA(image.Rect(0, 0, cell.X*cols, cell.Y*rows))

	for i, img := range images {
		origin := image.Pt((i%cols)*cell.X, (i/cols)*cell.Y)

		draw.Draw(retImage, image.Rectangle{Min: origin, Max: origin.Add(cell)}, img, img.Bounds().Min, draw.Over)
	}

	imageBuf := new(bytes.Buffer)

	err := png.Encode(imageBuf, retImage)
	if err != nil {
		return nil, err
	}

	return imageBuf, nil
}
