package wind

// beaufortKmh holds the upper bound, in km/h, of each Beaufort number.
// Source: Royal Meteorological Society.
var beaufortKmh = [...]float64{1, 5, 11, 19, 28, 38, 49, 61, 74, 88, 102, 117, 118}

// MaxBeaufort is the highest number on the scale.
const MaxBeaufort = 12

// KmhToMs converts km/h to m/s.
func KmhToMs(kmh float64) float64 {
	return kmh * 1000 / 3600
}

// BeaufortUpperBound returns the highest speed, in m/s, with Beaufort number n.
func BeaufortUpperBound(n int) float64 {
	if n < 0 || n >= len(beaufortKmh) {
		return 0
	}
	return KmhToMs(beaufortKmh[n])
}

// BeaufortNumber returns the Beaufort number for a wind speed in m/s.
func BeaufortNumber(ms float64) int {
	for i, bound := range beaufortKmh {
		if ms <= KmhToMs(bound) {
			return i
		}
	}
	return MaxBeaufort
}

var cardinals = [...]string{"NE", "E", "SE", "S", "SW", "W", "NW"}

// DegreesToCardinal returns the 8-point compass direction for deg.
// Each sector is 45 degrees wide and N spans (337.5, 22.5].
func DegreesToCardinal(deg float64) string {
	lower := 22.5
	for _, dir := range cardinals {
		upper := lower + 45
		if deg > lower && deg <= upper {
			return dir
		}
		lower = upper
	}
	return "N"
}
