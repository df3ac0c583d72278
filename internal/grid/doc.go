// Package grid builds the regular query mesh the estimator is evaluated on.
//
// Responsibilities: bounding box and resolution validation, mesh generation
// and the reshape of flat per-point vectors back into a row x column surface.
// Both directions go through a single Ordering value so that the emission
// order of GenerateMesh and the layout assumed by Reshape cannot drift apart.
//
// No estimator, storage or contour code is allowed in this package.
package grid
