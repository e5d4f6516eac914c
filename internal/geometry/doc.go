// Package geometry provides the coordinate math shared by the annotation core.
//
// All coordinates are float64 image-pixel (surface) coordinates with the origin
// at the top-left corner, X increasing rightward and Y increasing downward.
// The backing store of the drawing surface is sized to the raster's natural
// pixel dimensions, so a point recorded here needs no further scaling to be
// drawn.
//
// # Coordinate Spaces
//
//   - Client space: pointer positions as reported by the host, in display units.
//   - Surface space: pixels of the backing store, identical to image pixels.
//
// ToSurfaceCoordinates maps between the two. Everything else in this package
// works in surface space.
//
// # Hit Testing
//
// PointInPolygon implements even-odd ray casting. A point lying exactly on an
// edge has no defined parity; callers must not rely on either result.
package geometry
