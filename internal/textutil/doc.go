// Package textutil provides small string helpers shared by the lake writer,
// the transform stage and the reporting layer.
package textutil
