package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/vrsandeep/mango-pages/internal/models"
	"golang.org/x/image/webp"
)

var errUnknownFormat = errors.New("unknown image format")

// detectImageFormat reads the magic bytes and returns the image format name.
func detectImageFormat(data []byte) (string, error) {
	if len(data) < 12 {
		return "", errUnknownFormat
	}
	switch {
	case data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "jpeg", nil
	case data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47:
		return "png", nil
	case string(data[0:6]) == "GIF87a" || string(data[0:6]) == "GIF89a":
		return "gif", nil
	case string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "webp", nil
	}
	return "", errUnknownFormat
}

func decodeImage(data []byte) (image.Image, string, error) {
	format, err := detectImageFormat(data)
	if err != nil {
		return nil, "", err
	}
	reader := bytes.NewReader(data)
	var img image.Image
	switch format {
	case "jpeg":
		img, err = jpeg.Decode(reader)
	case "png":
		img, err = png.Decode(reader)
	case "gif":
		img, err = gif.Decode(reader)
	case "webp":
		img, err = webp.Decode(reader)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode %s image: %w", format, err)
	}
	return img, format, nil
}

// encodeImage writes img back in its original format. WebP has no encoder
// here, so it is stored as JPEG.
func encodeImage(w io.Writer, img image.Image, format string) error {
	switch format {
	case "png":
		return imaging.Encode(w, img, imaging.PNG)
	case "gif":
		return imaging.Encode(w, img, imaging.GIF)
	default:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(90))
	}
}

func (f *Fetcher) readPage(ctx context.Context, page int) ([]byte, error) {
	if err := f.checkRange(page); err != nil {
		return nil, err
	}
	if err := f.coord.Await(ctx, page); err != nil {
		return nil, err
	}
	data, err := f.pages.ReadFile(f.itemID, page)
	if err != nil {
		return nil, &models.IOError{Op: "read", Path: f.pages.Path(f.itemID, page), Err: err}
	}
	return data, nil
}

// RotatePicture turns the cached page a quarter turn in place. The file is
// replaced atomically and nothing is downloaded.
func (f *Fetcher) RotatePicture(ctx context.Context, page int, clockwise bool) error {
	data, err := f.readPage(ctx, page)
	if err != nil {
		return err
	}
	img, format, err := decodeImage(data)
	if err != nil {
		return err
	}

	var rotated *image.NRGBA
	if clockwise {
		rotated = imaging.Rotate270(img)
	} else {
		rotated = imaging.Rotate90(img)
	}

	_, err = f.pages.Replace(f.itemID, page, func(w io.Writer) error {
		return encodeImage(w, rotated, format)
	})
	return err
}

// Thumbnail renders the cached page as a JPEG that fits in width×height.
func (f *Fetcher) Thumbnail(ctx context.Context, page int, width, height uint) ([]byte, error) {
	data, err := f.readPage(ctx, page)
	if err != nil {
		return nil, err
	}
	img, _, err := decodeImage(data)
	if err != nil {
		return nil, err
	}

	thumb := resize.Thumbnail(width, height, img, resize.Lanczos3)

	var buf bytes.Buffer
	// Quality 75 is plenty for a cover.
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
