package vision

// Normalization presets.
var (
	// Scale to [0,1] only.
	NoNormMean = [3]float32{0.0, 0.0, 0.0}
	NoNormStd  = [3]float32{1.0, 1.0, 1.0}

	// CLIP-style vision encoders.
	ClipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	ClipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// ToCHW converts an image to a float32 tensor in planar channel-first
// layout, normalized with the given mean and std. Pixel values are scaled
// to [0,1] before normalization.
func ToCHW(img *Image, mean, std [3]float32) []float32 {
	bounds := img.RGBA.Bounds()
	h := bounds.Dy()
	w := bounds.Dx()
	size := h * w

	result := make([]float32, size*3)
	rOffset := 0
	gOffset := size
	bOffset := size * 2

	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b := extractRGB(img, x, y)

			result[rOffset+idx] = (r - mean[0]) / std[0]
			result[gOffset+idx] = (g - mean[1]) / std[1]
			result[bOffset+idx] = (b - mean[2]) / std[2]
			idx++
		}
	}

	return result
}

// extractRGB returns RGB values as float32 in [0,1].
func extractRGB(img *Image, x, y int) (float32, float32, float32) {
	c := img.RGBA.RGBAAt(x, y)
	return float32(c.R) / 255.0, float32(c.G) / 255.0, float32(c.B) / 255.0
}
