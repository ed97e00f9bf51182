// Package codec decodes, resizes and re-encodes images for the derivative
// pipeline. Decoding honours the EXIF orientation tag so that the reported
// width and height match what a viewer displays.
package codec

import (
	"bytes"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/koustreak/derivr/internal/errs"
	"github.com/koustreak/derivr/internal/pathrules"
)

// DefaultJPEGQuality matches the encoder default of the previous pipeline.
const DefaultJPEGQuality = 75

// Format is an output encoding.
type Format int

const (
	FormatJPEG Format = iota
	FormatPNG
)

func (f Format) String() string {
	if f == FormatPNG {
		return "png"
	}
	return "jpeg"
}

// ContentType returns the MIME type written with objects of this format.
func (f Format) ContentType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// FormatFor picks PNG iff key ends in .png (any case), JPEG otherwise.
func FormatFor(key string) Format {
	if pathrules.Ext(key) == ".png" {
		return FormatPNG
	}
	return FormatJPEG
}

// Asset is a decoded, orientation-corrected image.
type Asset struct {
	Image  image.Image
	Width  int
	Height int
	Size   int // length of the source bytes
}

// Codec implements decode/resize/encode with imaging.
type Codec struct {
	jpegQuality int
}

// New returns a Codec encoding JPEG at quality (1..100); out-of-range
// values fall back to DefaultJPEGQuality.
func New(jpegQuality int) *Codec {
	if jpegQuality < 1 || jpegQuality > 100 {
		jpegQuality = DefaultJPEGQuality
	}
	return &Codec{jpegQuality: jpegQuality}
}

// Decode parses data and rotates/flips it according to its EXIF orientation.
func (c *Codec) Decode(data []byte) (*Asset, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindDecodeFailed, "failed to decode image", err)
	}

	img = applyOrientation(img, Orientation(data))
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, errs.New(errs.ErrKindDecodeFailed, "image has no pixels")
	}

	return &Asset{
		Image:  img,
		Width:  b.Dx(),
		Height: b.Dy(),
		Size:   len(data),
	}, nil
}

// Resize scales img to exactly width x height.
func (c *Codec) Resize(img image.Image, width, height int) image.Image {
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

// Encode serialises img in format f. JPEG output is flattened first since
// the format carries no alpha channel.
func (c *Codec) Encode(img image.Image, f Format) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch f {
	case FormatPNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	default:
		err = imaging.Encode(&buf, Flatten(img), imaging.JPEG, imaging.JPEGQuality(c.jpegQuality))
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindEncodeFailed, "failed to encode "+f.String(), err)
	}
	return buf.Bytes(), nil
}

// Flatten drops the alpha channel, keeping each pixel's colour as stored.
func Flatten(img image.Image) image.Image {
	if opaque, ok := img.(interface{ Opaque() bool }); ok && opaque.Opaque() {
		return img
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		c.A = 0xff
		return c
	})
}

// Orientation returns the EXIF orientation (1..8) of data, or 1 when the
// tag is absent or unreadable.
func Orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// applyOrientation transforms an image according to EXIF orientation value.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
