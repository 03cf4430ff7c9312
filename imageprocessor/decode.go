package imageprocessor

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"imagededup/types"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// LoadImage loads an image in color for feature extraction. The caller owns
// the returned Mat and must Close it.
func LoadImage(path string) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return img, &types.DecodeError{Path: path, Err: fmt.Errorf("unreadable or unsupported image data")}
	}
	return img, nil
}

// decodeStd decodes an image through the standard library decoders, which is
// what the coarse pre-filter hash operates on. The blank imports above
// register jpeg/png/gif plus bmp/tiff/webp.
func decodeStd(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &types.DecodeError{Path: path, Err: err}
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, &types.DecodeError{Path: path, Err: err}
	}
	return img, nil
}
