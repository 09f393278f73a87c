// Package detection turns raw object detections into warehouse records.
//
// Classify is the single source of truth for the image category taxonomy
// (promotional, product_display, lifestyle, other). BuildRecord picks the top
// detection for an image and stamps the category derived from every detected
// class. Both are pure and safe for concurrent use.
package detection
