// Package memory provides persistence implementations that store data in
// memory.
//
// They are intended to be used as reference implementations and are also used
// throughout various internal test suites.
package memory
