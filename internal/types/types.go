// README: Common value types shared across modules.
package types

// ID identifies a user, offer, or request.
type ID string

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lng float64
}
