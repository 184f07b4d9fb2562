package coords_test

import (
	"testing"

	"github.com/deskstep/deskstep/pkg/coords"
	"github.com/deskstep/deskstep/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	spaces := []types.CoordSpace{types.SpacePixel, types.SpaceModel1000, types.SpaceNormalized}
	points := [][2]float64{
		{0, 0}, {0.25, 0.75}, {0.5, 0.5}, {1, 1}, {0.123, 0.987},
	}

	for _, space := range spaces {
		for _, p := range points {
			fx, fy := coords.FromNormalized(p[0], p[1], space, 1280, 720)
			nx, ny := coords.ToNormalized(fx, fy, space, 1280, 720)
			assert.InDelta(t, p[0], nx, 1e-9, "space %s x", space)
			assert.InDelta(t, p[1], ny, 1e-9, "space %s y", space)
		}
	}
}

func TestToNormalized(t *testing.T) {
	tests := []struct {
		name   string
		x, y   float64
		space  types.CoordSpace
		w, h   int
		wantX  float64
		wantY  float64
		deltaX float64
	}{
		{
			name: "pixel space", x: 640, y: 360, space: types.SpacePixel, w: 1280, h: 720,
			wantX: 0.5, wantY: 0.5,
		},
		{
			name: "model_1000 space", x: 500, y: 250, space: types.SpaceModel1000, w: 1280, h: 720,
			wantX: 0.5, wantY: 0.25,
		},
		{
			name: "already normalized despite pixel label", x: 0.5, y: 0.5, space: types.SpacePixel, w: 1280, h: 720,
			wantX: 0.5, wantY: 0.5,
		},
		{
			name: "already normalized despite model_1000 label", x: 0.3, y: 0.4, space: types.SpaceModel1000, w: 1280, h: 720,
			wantX: 0.3, wantY: 0.4,
		},
		{
			name: "normalized label but model_1000 values", x: 300, y: 400, space: types.SpaceNormalized, w: 1280, h: 720,
			wantX: 0.3, wantY: 0.4,
		},
		{
			name: "pixel label beyond screen falls back to model_1000", x: 900, y: 900, space: types.SpacePixel, w: 1280, h: 720,
			wantX: 0.9, wantY: 0.9,
		},
		{
			name: "out of range clamps instead of rejecting", x: 2000, y: -5, space: types.SpaceModel1000, w: 1280, h: 720,
			wantX: 1.0, wantY: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotX, gotY := coords.ToNormalized(tt.x, tt.y, tt.space, tt.w, tt.h)
			assert.InDelta(t, tt.wantX, gotX, 1e-9)
			assert.InDelta(t, tt.wantY, gotY, 1e-9)
		})
	}
}

func TestToPixel(t *testing.T) {
	px, py := coords.ToPixel(types.Point{X: 0.5, Y: 0.5}, 1280, 720)
	assert.Equal(t, 640, px)
	assert.Equal(t, 360, py)

	// Edges stay on screen.
	px, py = coords.ToPixel(types.Point{X: 1, Y: 1}, 1280, 720)
	assert.Equal(t, 1279, px)
	assert.Equal(t, 719, py)
}
