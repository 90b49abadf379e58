package codec

import (
	"fmt"
	"strings"
)

const tagName = "wire"

// fieldOptions holds the parsed `wire` struct tag of one field.
//
//	`wire:"-"`         field is not encoded
//	`wire:"unsigned"`  integers use an unsigned varint instead of fixed width
//	`wire:"nullable"`  slices carry a presence byte; nil encodes as absent
//
// Pointer fields are always nullable and need no tag.
type fieldOptions struct {
	skip     bool
	unsigned bool
	nullable bool
}

func parseTag(tag string) (fieldOptions, error) {
	var opts fieldOptions
	if tag == "" {
		return opts, nil
	}
	if tag == "-" {
		opts.skip = true
		return opts, nil
	}
	for _, o := range strings.Split(tag, ",") {
		switch strings.TrimSpace(o) {
		case "":
		case "unsigned":
			opts.unsigned = true
		case "nullable":
			opts.nullable = true
		default:
			return opts, fmt.Errorf("unknown option %q", o)
		}
	}
	return opts, nil
}
