// Package annotation holds the clinician/AI annotation model and the two
// geometric routines that operate on it: consensus detection and hover
// picking.
//
// # Coordinate System
//
// All positions are normalized image coordinates: X is a fraction of the
// surface width, Y a fraction of the surface height, both in [0,1] with the
// origin at the top-left. Distances are Euclidean in that normalized space,
// so they are independent of the rendered pixel size.
//
// # Ownership
//
// Annotations and regions are values. Collections are never mutated in
// place; the helpers on Annotations return new slices so a renderer or
// detector holding an older slice keeps a consistent view.
package annotation
