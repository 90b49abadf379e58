package buffer

import "errors"

var (
	ErrTruncated      = errors.New("buffer: truncated data")
	ErrVarintOverflow = errors.New("buffer: varint overflows target width")
	ErrInvalidBool    = errors.New("buffer: invalid bool value")
	ErrInvalidUTF8    = errors.New("buffer: invalid utf-8 string")
	ErrTooLong        = errors.New("buffer: length exceeds 32 bits")
)
