package filters

import "fmt"

const (
	// maxImageDimension caps width/height to avoid excessive allocations
	// when corrupted files lie about image sizes.
	maxImageDimension = 32768
	// maxImagePixels bounds the total pixel count (roughly 64MP).
	maxImagePixels int64 = 64 * 1024 * 1024
)

// ValidateImageBounds rejects dimensions that would allocate unreasonable
// buffers.
func ValidateImageBounds(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("image bounds invalid (%d x %d)", width, height)
	}
	if width > maxImageDimension || height > maxImageDimension {
		return fmt.Errorf("image dimension exceeds limit (%d x %d)", width, height)
	}
	if pixels := int64(width) * int64(height); pixels > maxImagePixels {
		return fmt.Errorf("image pixel count %d exceeds limit %d", pixels, maxImagePixels)
	}
	return nil
}
