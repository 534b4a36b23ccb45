// Package wire implements the little-endian binary codec used by PRUDP and
// RMC: fixed-width primitives, length-prefixed strings and buffers, QLists,
// Variants, DateTimes and StationURLs.
//
// Every decode function is total: malformed input returns an error, never a
// panic, so a hostile datagram can only ever cause a dropped packet.
package wire

import "errors"

// ErrShortRead is returned when a read would consume more bytes than remain
// in the stream.
var ErrShortRead = errors.New("wire: short read")

// ErrStringNotTerminated is returned when a string's length prefix does not
// leave room for its mandatory NUL terminator.
var ErrStringNotTerminated = errors.New("wire: string missing NUL terminator")

// ErrUnknownVariantTag is returned when a Variant's tag byte does not match
// any of the seven known payload kinds.
var ErrUnknownVariantTag = errors.New("wire: unknown variant tag")

// ErrTooLarge is returned when a length prefix exceeds a sane bound, to keep
// a malicious length from triggering a huge allocation.
var ErrTooLarge = errors.New("wire: length prefix too large")
