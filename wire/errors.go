package wire

import "errors"

var (
	errInvalidCSV     = errors.New("wire: invalid channel list")
	errTooManyEntries = errors.New("wire: too many channel list entries")
	errUnknownKeyword = errors.New("wire: unknown MONITOR keyword")
)
