// Package coords converts between the coordinate conventions different
// model families emit (raw pixels, normalized [0,1], and the [0,1000]
// range some fine-tunes were trained on) and the normalized space the
// canonical Action carries.
package coords

import (
	"github.com/deskstep/deskstep/pkg/types"
)

// ToNormalized converts (x, y) from the given space into [0,1] using
// the screen dimensions of the current observation. Inputs that are
// plausibly in a different range than the declared space are
// auto-corrected rather than rejected: a model trained on one range
// sometimes emits the other, and dropping the step would stall the
// episode. Out-of-range values after correction are clamped.
func ToNormalized(x, y float64, space types.CoordSpace, width, height int) (float64, float64) {
	switch space {
	case types.SpacePixel:
		// Values already in [0,1] were normalized despite the label.
		if x <= 1.0 && y <= 1.0 {
			break
		}
		if width > 0 && height > 0 && (x <= float64(width)+0.5 && y <= float64(height)+0.5) {
			x /= float64(width)
			y /= float64(height)
		} else {
			// Beyond the screen bounds the only consistent reading left
			// is the model_1000 convention.
			x /= 1000.0
			y /= 1000.0
		}
	case types.SpaceModel1000:
		if x <= 1.0 && y <= 1.0 {
			break
		}
		x /= 1000.0
		y /= 1000.0
	case types.SpaceNormalized:
		// Values above 1 mean the label is wrong; rescale from whichever
		// range they actually fit.
		if x > 1.0 || y > 1.0 {
			if x <= 1000.0 && y <= 1000.0 {
				x /= 1000.0
				y /= 1000.0
			} else if width > 0 && height > 0 {
				x /= float64(width)
				y /= float64(height)
			}
		}
	}
	return Clamp01(x), Clamp01(y)
}

// FromNormalized converts normalized (x, y) back into the given space.
func FromNormalized(x, y float64, space types.CoordSpace, width, height int) (float64, float64) {
	x, y = Clamp01(x), Clamp01(y)
	switch space {
	case types.SpacePixel:
		return x * float64(width), y * float64(height)
	case types.SpaceModel1000:
		return x * 1000.0, y * 1000.0
	default:
		return x, y
	}
}

// ToPixel converts a normalized point into integer pixel coordinates,
// clamped to the screen.
func ToPixel(p types.Point, width, height int) (int, int) {
	fx, fy := FromNormalized(p.X, p.Y, types.SpacePixel, width, height)
	px, py := int(fx+0.5), int(fy+0.5)
	if px >= width {
		px = width - 1
	}
	if py >= height {
		py = height - 1
	}
	if px < 0 {
		px = 0
	}
	if py < 0 {
		py = 0
	}
	return px, py
}

// Clamp01 clamps v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
