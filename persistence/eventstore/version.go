package eventstore

import (
	"fmt"
	"strconv"
)

// ExpectedVersion is an optimistic concurrency token that describes the state
// a stream must be in for an append to succeed.
//
// The zero value expects the stream to not exist.
type ExpectedVersion struct {
	exact bool
	v     int64
}

// NoStream returns an [ExpectedVersion] that expects the stream to not exist.
func NoStream() ExpectedVersion {
	return ExpectedVersion{}
}

// Exact returns an [ExpectedVersion] that expects the version of the stream's
// most recent event to be exactly v.
func Exact(v int64) (ExpectedVersion, error) {
	if v < 0 {
		return ExpectedVersion{}, fmt.Errorf(
			"%w: expected version must be non-negative, got %d",
			ErrInvalidArgument,
			v,
		)
	}
	return ExpectedVersion{true, v}, nil
}

// MustExact returns an [ExpectedVersion] that expects the version of the
// stream's most recent event to be exactly v. It panics if v is negative.
func MustExact(v int64) ExpectedVersion {
	e, err := Exact(v)
	if err != nil {
		panic(err)
	}
	return e
}

// ForVersion returns the [ExpectedVersion] for a stream that was last
// observed at version v, where -1 means the stream did not exist.
func ForVersion(v int64) ExpectedVersion {
	if v < 0 {
		return NoStream()
	}
	return ExpectedVersion{true, v}
}

// IsNoStream returns true if e expects the stream to not exist.
func (e ExpectedVersion) IsNoStream() bool {
	return !e.exact
}

// Version returns the expected version of the stream's most recent event, or
// -1 if the stream is expected to not exist.
func (e ExpectedVersion) Version() int64 {
	if !e.exact {
		return -1
	}
	return e.v
}

// Matches returns true if a stream whose most recent event is at version
// current satisfies e. A current version of -1 means the stream does not exist.
func (e ExpectedVersion) Matches(current int64) bool {
	return e.Version() == current
}

func (e ExpectedVersion) String() string {
	if !e.exact {
		return "no-stream"
	}
	return strconv.FormatInt(e.v, 10)
}
