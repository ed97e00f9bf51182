package codec

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/koustreak/derivr/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

// withOrientation splices a minimal big-endian EXIF APP1 segment carrying
// only the orientation tag right after the JPEG SOI marker.
func withOrientation(jpg []byte, orientation byte) []byte {
	app1 := []byte{
		0xFF, 0xE1, 0x00, 0x22, // APP1, length 34
		'E', 'x', 'i', 'f', 0x00, 0x00,
		'M', 'M', 0x00, 0x2A, 0x00, 0x00, 0x00, 0x08, // TIFF header, IFD0 at 8
		0x00, 0x01, // one entry
		0x01, 0x12, 0x00, 0x03, 0x00, 0x00, 0x00, 0x01, 0x00, orientation, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, // no IFD1
	}
	out := append([]byte{}, jpg[:2]...)
	out = append(out, app1...)
	return append(out, jpg[2:]...)
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatPNG, FormatFor("assets/uploads/a/b.png"))
	assert.Equal(t, FormatPNG, FormatFor("assets/uploads/a/b.PNG"))
	assert.Equal(t, FormatJPEG, FormatFor("assets/uploads/a/b.jpg"))
	assert.Equal(t, FormatJPEG, FormatFor("assets/uploads/a/b.jpeg"))
	assert.Equal(t, "image/png", FormatPNG.ContentType())
	assert.Equal(t, "image/jpeg", FormatJPEG.ContentType())
}

func TestDecode(t *testing.T) {
	data := encodeJPEG(t, gradient(40, 20))

	asset, err := New(0).Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 40, asset.Width)
	assert.Equal(t, 20, asset.Height)
	assert.Equal(t, len(data), asset.Size)
}

func TestDecode_Corrupt(t *testing.T) {
	_, err := New(0).Decode([]byte("definitely not an image"))
	assert.Equal(t, errs.ErrKindDecodeFailed, errs.KindOf(err))
}

func TestDecode_AppliesOrientation(t *testing.T) {
	data := withOrientation(encodeJPEG(t, gradient(40, 20)), 6)
	require.Equal(t, 6, Orientation(data))

	asset, err := New(0).Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 20, asset.Width)
	assert.Equal(t, 40, asset.Height)
}

func TestOrientation_Absent(t *testing.T) {
	assert.Equal(t, 1, Orientation(encodeJPEG(t, gradient(4, 4))))
	assert.Equal(t, 1, Orientation(nil))
}

func TestApplyOrientation(t *testing.T) {
	src := gradient(4, 2)
	tests := []struct {
		orientation int
		w, h        int
	}{
		{1, 4, 2}, {2, 4, 2}, {3, 4, 2}, {4, 4, 2},
		{5, 2, 4}, {6, 2, 4}, {7, 2, 4}, {8, 2, 4},
		{0, 4, 2}, {9, 4, 2},
	}
	for _, tt := range tests {
		b := applyOrientation(src, tt.orientation).Bounds()
		assert.Equal(t, tt.w, b.Dx(), "orientation %d", tt.orientation)
		assert.Equal(t, tt.h, b.Dy(), "orientation %d", tt.orientation)
	}

	// 180 degrees moves the top-left pixel to the bottom-right corner.
	rotated := applyOrientation(src, 3)
	assert.Equal(t, src.At(0, 0), rotated.At(3, 1))
}

func TestResize(t *testing.T) {
	out := New(0).Resize(gradient(100, 50), 18, 9)
	assert.Equal(t, image.Rect(0, 0, 18, 9), out.Bounds())
}

func TestEncode_JPEGFlattensAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0
	}

	data, err := New(90).Encode(img, FormatJPEG)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	_, _, _, a := decoded.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), a)
}

func TestEncode_PNGKeepsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 10})

	data, err := New(0).Encode(img, FormatPNG)
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 255, A: 10}, color.NRGBAModel.Convert(decoded.At(0, 0)))
}

func TestEncode_Deterministic(t *testing.T) {
	c := New(75)
	img := c.Resize(gradient(64, 32), 32, 16)

	a, err := c.Encode(img, FormatJPEG)
	require.NoError(t, err)
	b, err := c.Encode(img, FormatJPEG)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFlatten(t *testing.T) {
	ycc := image.NewYCbCr(image.Rect(0, 0, 2, 2), image.YCbCrSubsampleRatio444)
	assert.Same(t, ycc, Flatten(ycc))

	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 0})
	flat := Flatten(img)
	assert.Equal(t, color.NRGBA{R: 200, G: 100, B: 50, A: 255}, color.NRGBAModel.Convert(flat.At(0, 0)))
}
