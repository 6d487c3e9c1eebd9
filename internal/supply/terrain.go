package supply

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// Elevation range assigned to generated locations, in metres.
const (
	minElevation = 1.0
	maxElevation = 100.0
)

// elevationField is a smooth noise surface over latitude/longitude, so
// nearby locations get similar elevations.
type elevationField struct {
	noise opensimplex.Noise
}

func newElevationField(seed int64) elevationField {
	return elevationField{noise: opensimplex.NewNormalized(seed)}
}

// At returns the elevation in metres at a coordinate.
func (f elevationField) At(lat, lon float64) float64 {
	v := octaveNoise(f.noise, lat, lon, 4, 0.8, 0.5)
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return minElevation + v*(maxElevation-minElevation)
}

func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
