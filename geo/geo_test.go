package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHaversine_KnownDistances(t *testing.T) {
	paris := Point{Lat: 48.8566, Lng: 2.3522}
	london := Point{Lat: 51.5074, Lng: -0.1278}

	d := Haversine(paris, london)
	// Roughly 344 km.
	assert.InDelta(t, 344000, d, 2000)

	assert.Zero(t, Haversine(paris, paris))
}

func TestHaversine_SymmetricAndAntimeridian(t *testing.T) {
	a := Point{Lat: 10, Lng: 179.5}
	b := Point{Lat: 10, Lng: -179.5}

	assert.InDelta(t, Haversine(a, b), Haversine(b, a), 0.001)
	// One degree of longitude at lat 10 is ~109 km; the short way across
	// the antimeridian, not 359 degrees around.
	assert.Less(t, Haversine(a, b), 120000.0)
}

func TestPlanarDistance_CloseToHaversineNearby(t *testing.T) {
	a := Point{Lat: 40.0, Lng: -74.0}
	b := Point{Lat: 40.01, Lng: -74.01}

	h := Haversine(a, b)
	p := PlanarDistance(a, b)
	assert.InDelta(t, h, p, h*0.01)
}

func TestBearing_Cardinals(t *testing.T) {
	origin := Point{Lat: 0, Lng: 0}

	north := Bearing(origin, Point{Lat: 1, Lng: 0})
	assert.InDelta(t, 0, north, 0.5)
	assert.Equal(t, "N", Cardinal(north))

	east := Bearing(origin, Point{Lat: 0, Lng: 1})
	assert.InDelta(t, 90, east, 0.5)
	assert.Equal(t, "E", Cardinal(east))

	assert.Equal(t, "NNE", Cardinal(22.5))
	assert.Equal(t, "NW", Cardinal(315))
}

func TestBounds_AntimeridianContains(t *testing.T) {
	box := Bounds{North: 10, South: -10, West: 170, East: -170}
	require.True(t, box.CrossesAntimeridian())

	assert.True(t, box.Contains(Point{Lat: 0, Lng: 175}))
	assert.True(t, box.Contains(Point{Lat: 0, Lng: -175}))
	assert.False(t, box.Contains(Point{Lat: 0, Lng: 0}))
	assert.False(t, box.Contains(Point{Lat: 20, Lng: 175}))
}

func TestBounds_AntimeridianCenter(t *testing.T) {
	box := Bounds{North: 10, South: -10, West: 170, East: -170}
	c := box.Center()
	assert.InDelta(t, 180, absf(c.Lng), 0.001)
	assert.InDelta(t, 0, c.Lat, 0.001)
}

func TestBounds_Intersects(t *testing.T) {
	a := Bounds{North: 10, South: 0, West: 0, East: 10}
	b := Bounds{North: 5, South: -5, West: 5, East: 15}
	c := Bounds{North: 50, South: 40, West: 0, East: 10}

	assert.True(t, a.Intersects(b))
	assert.False(t, a.Intersects(c))

	wrap := Bounds{North: 10, South: -10, West: 170, East: -170}
	east := Bounds{North: 5, South: -5, West: 174, East: 176}
	west := Bounds{North: 5, South: -5, West: -176, East: -174}
	assert.True(t, wrap.Intersects(east))
	assert.True(t, wrap.Intersects(west))
	assert.False(t, wrap.Intersects(a))
}

func TestBoundsAroundPoint(t *testing.T) {
	b := BoundsAroundPoint(Point{Lat: 48.85, Lng: 2.35}, 10000)
	require.NoError(t, b.Validate())

	// ~0.09 degrees of latitude for 10km.
	assert.InDelta(t, 48.85+0.09, b.North, 0.01)
	assert.InDelta(t, 48.85-0.09, b.South, 0.01)
	assert.True(t, b.Contains(Point{Lat: 48.85, Lng: 2.35}))

	// Wrapping across the antimeridian.
	wrapped := BoundsAroundPoint(Point{Lat: 0, Lng: 179.95}, 50000)
	assert.True(t, wrapped.CrossesAntimeridian())
	assert.True(t, wrapped.Contains(Point{Lat: 0, Lng: -179.9}))

	// Near the pole the box degenerates to the full longitude circle.
	polar := BoundsAroundPoint(Point{Lat: 89.9, Lng: 0}, 100000)
	assert.Equal(t, 180.0, polar.East)
	assert.Equal(t, -180.0, polar.West)
	assert.Equal(t, 90.0, polar.North)
}

func TestUnits(t *testing.T) {
	km, err := ParseUnit("km")
	require.NoError(t, err)
	assert.Equal(t, 2500.0, km.ToMeters(2.5))
	assert.Equal(t, 2.5, km.FromMeters(2500))

	mi, err := ParseUnit("mi")
	require.NoError(t, err)
	assert.InDelta(t, 1609.344, mi.ToMeters(1), 0.001)

	m, err := ParseUnit("")
	require.NoError(t, err)
	assert.Equal(t, 42.0, m.ToMeters(42))

	_, err = ParseUnit("furlongs")
	assert.Error(t, err)
}

func TestPointValidate(t *testing.T) {
	assert.NoError(t, Point{Lat: 45, Lng: 90}.Validate())
	assert.Error(t, Point{Lat: 91, Lng: 0}.Validate())
	assert.Error(t, Point{Lat: 0, Lng: 181}.Validate())
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
