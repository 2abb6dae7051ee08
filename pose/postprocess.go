package pose

// Keypoint is one landmark prediction in original image coordinates.
type Keypoint struct {
	X          float32
	Y          float32
	Confidence float32
}

// Detection is the single retained pose: its box (center format, original
// image coordinates) and 17 keypoints.
type Detection struct {
	X, Y, W, H float32
	Confidence float32
	Keypoints  [NumKeypoints]Keypoint
}

// BestDetection selects the single highest-confidence candidate from the
// raw channel-major model output of shape [1, channels, boxes]. No NMS:
// this is a single-subject pipeline, only the most confident detection is
// kept. Candidates below BoxConfidenceThreshold are discarded entirely.
//
// Box and keypoint coordinates are rescaled from model input space back to
// the original origW x origH resolution.
func BestDetection(data []float32, channels, boxes int, origW, origH int) (Detection, bool) {
	if channels < 5+NumKeypoints*3 || boxes <= 0 || len(data) < channels*boxes {
		return Detection{}, false
	}

	// Channel-major lookup: value of channel c for box b.
	at := func(c, b int) float32 {
		return data[c*boxes+b]
	}

	best := 0
	for b := 1; b < boxes; b++ {
		if at(4, b) > at(4, best) {
			best = b
		}
	}

	conf := at(4, best)
	if conf < BoxConfidenceThreshold {
		return Detection{}, false
	}

	sx := float32(origW) / float32(InputSize)
	sy := float32(origH) / float32(InputSize)

	det := Detection{
		X:          at(0, best) * sx,
		Y:          at(1, best) * sy,
		W:          at(2, best) * sx,
		H:          at(3, best) * sy,
		Confidence: conf,
	}

	for k := 0; k < NumKeypoints; k++ {
		base := 5 + k*3
		det.Keypoints[k] = Keypoint{
			X:          at(base, best) * sx,
			Y:          at(base+1, best) * sy,
			Confidence: at(base+2, best),
		}
	}

	return det, true
}
