package geo

import (
	"fmt"
	"math"

	"github.com/OCAP2/drone-tracker/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// GEO POINTS
// Points are stored as EPSG:3857 so SQLite, which has no spatial support, can
// still round-trip them through the WKB Scan/Value of geom.Point.

// Coords3857From4326 creates a web mercator point from a longitude and latitude
func Coords3857From4326(longitude, latitude float64) (geom.Point, error) {
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ := f(longitude, latitude, 0)
	return newPoint(geom.XY{X: x, Y: y})
}

// newPoint builds a 2D point, rejecting NaN and infinite coordinates.
func newPoint(xy geom.XY) (geom.Point, error) {
	point, err := geom.NewPoint(geom.Coordinates{XY: xy, Type: geom.DimXY})
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY), fmt.Errorf("invalid point (%g, %g): %w", xy.X, xy.Y, err)
	}
	return point, nil
}

// Projector places the drone's local grid, measured in metres from the
// launch point, onto the map.
type Projector struct {
	home  geom.XY
	scale float64

	toLonLat func(a, b, c float64) (float64, float64, float64)
}

// NewProjector anchors grid origin (0, 0) at the given home coordinates.
func NewProjector(homeLatitude, homeLongitude float64) *Projector {
	epsg := wgs84.EPSG()
	x, y, _ := epsg.Transform(4326, 3857)(homeLongitude, homeLatitude, 0)

	// web mercator stretches distances by 1/cos(latitude)
	scale := 1 / math.Cos(homeLatitude*math.Pi/180)

	return &Projector{
		home:     geom.XY{X: x, Y: y},
		scale:    scale,
		toLonLat: epsg.Transform(3857, 4326),
	}
}

// Home returns the launch point in EPSG:3857.
func (p *Projector) Home() (geom.Point, error) {
	return newPoint(p.home)
}

func (p *Projector) xy(pos core.Position2D) geom.XY {
	return geom.XY{
		X: p.home.X + float64(pos.X)*p.scale,
		Y: p.home.Y + float64(pos.Y)*p.scale,
	}
}

// Point projects a grid position to an EPSG:3857 point.
func (p *Projector) Point(pos core.Position2D) (geom.Point, error) {
	return newPoint(p.xy(pos))
}

// LonLat projects a grid position to WGS84 longitude and latitude.
func (p *Projector) LonLat(pos core.Position2D) (lon, lat float64) {
	xy := p.xy(pos)
	lon, lat, _ = p.toLonLat(xy.X, xy.Y, 0)
	return lon, lat
}

// FlightPath builds an EPSG:3857 line through the given positions, skipping
// samples where the drone did not move. A path that never leaves its first
// position yields an empty line.
func (p *Projector) FlightPath(positions []core.Position2D) (geom.LineString, error) {
	flat := make([]float64, 0, len(positions)*2)
	points := 0
	for i, pos := range positions {
		if i > 0 && pos == positions[i-1] {
			continue
		}
		xy := p.xy(pos)
		flat = append(flat, xy.X, xy.Y)
		points++
	}
	if points < 2 {
		return geom.LineString{}, nil
	}

	path, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	if err != nil {
		return geom.LineString{}, fmt.Errorf("invalid flight path: %w", err)
	}
	return path, nil
}

// GridDistance is the length in metres of the path through positions.
func GridDistance(positions []core.Position2D) float64 {
	var total float64
	for i := 1; i < len(positions); i++ {
		dx := float64(positions[i].X - positions[i-1].X)
		dy := float64(positions[i].Y - positions[i-1].Y)
		total += math.Hypot(dx, dy)
	}
	return total
}
