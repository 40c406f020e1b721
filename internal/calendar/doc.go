// Package calendar defines the scheduling domain: events and their kinds,
// service lines, the tagged series structure (SeriesRoot and Occurrence),
// partial updates, and the validation every stored event must pass.
package calendar
