package dataset

import (
	"fmt"
	"strings"
)

// ConfigError reports that no usable source dataset path exists. It names
// every probed path so an operator can see what was tried.
type ConfigError struct {
	Probed []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("no dataset file found, probed: %s", strings.Join(e.Probed, ", "))
}

// ParseError reports a structural failure of the dataset file itself, such
// as malformed CSV quoting. Individual rows with bad coordinate values are
// not parse errors; they are counted and skipped.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed dataset %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IOError reports that the dataset file could not be opened or became
// unreadable mid-stream.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("reading dataset %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
