// Package imaging is the image surface adapter for the consensus viewer.
//
// It resolves an opaque image locator to pixels, mounts the result on a
// fixed-size host surface and reports the rectangle the image occupies so
// overlays can be sized and aligned to it.
//
// # Coordinate System
//
// Pixel coordinates are 0-based with (0,0) at the top-left corner of the
// host surface, X increasing rightward and Y increasing downward. A Rect
// locates the displayed image inside the host.
//
// Normalized coordinates are fractions of the displayed image in [0,1]
// along each axis, with the same origin and orientation. Rect.Normalize
// and Rect.Denormalize convert between the two.
//
// # Surface Lifecycle
//
// A Surface moves through idle, loading, ready and error. Mount acquires a
// rendering context sized to the host, loads and displays the image, and
// releases the context again on every failure path. Each Mount or Unmount
// bumps the surface generation; a load that finishes after its generation
// has been superseded is discarded.
//
// # Radius Scaling
//
// Region radii are fractions of one image dimension. On non-square images
// the choice matters, so it is fixed per process through a RadiusPolicy
// and shared by everything that converts a radius to pixels.
//
// # Thread Safety
//
// Loader and Surface are safe for concurrent use. Crop helpers are
// stateless.
package imaging
