// Package render draws the viewer overlay: AI regions, consensus halos and
// clinician markers on a transparent canvas the size of the displayed
// image.
//
// Rendering is split in two steps. Plan lays out a Scene in overlay pixel
// space and is pure, so marker numbering and hover state can be checked
// without touching pixels. Render rasterizes a plan onto a freshly
// allocated canvas; nothing carries over between calls.
//
// Layers are painted back to front:
//
//  1. AI regions: radial gradient, dashed bounding square, label
//  2. consensus halos, only when enabled
//  3. clinician markers, numbered 1..n in slice order
package render
