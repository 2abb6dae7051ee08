package pose

import (
	"image/color"

	"github.com/aidelabs/aide/vision"
)

var keypointColor = color.RGBA{R: 255, G: 64, B: 64, A: 255}

const keypointRadius = 5

// Annotate draws filled circles onto the original frame at every keypoint
// whose confidence clears KeypointConfidenceThreshold. The frame is
// modified in place; it is request-scoped and never shared.
func Annotate(img *vision.Image, det Detection) {
	for _, kp := range det.Keypoints {
		if kp.Confidence <= KeypointConfidenceThreshold {
			continue
		}
		drawCircle(img, int(kp.X), int(kp.Y), keypointRadius)
	}
}

func drawCircle(img *vision.Image, cx, cy, r int) {
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy > r*r {
				continue
			}
			x, y := cx+dx, cy+dy
			if x < 0 || y < 0 || x >= img.Width || y >= img.Height {
				continue
			}
			img.RGBA.SetRGBA(x, y, keypointColor)
		}
	}
}
