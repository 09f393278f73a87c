// Package enrichment runs object detection over downloaded channel images,
// classifies each image, and persists one detection record per image.
//
// Images run through a bounded worker pool; results are gathered by a single
// collector so the CSV export and the warehouse insert each happen once, in a
// deterministic order, after the pool drains.
package enrichment
