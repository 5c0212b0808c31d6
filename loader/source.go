package loader

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/wippyai/wasm-bridge/errors"
)

// SourceKind identifies where module bytes come from
type SourceKind uint8

const (
	SourceBytes SourceKind = iota
	SourceFile
	SourceURL
)

func (k SourceKind) String() string {
	switch k {
	case SourceBytes:
		return "bytes"
	case SourceFile:
		return "file"
	case SourceURL:
		return "url"
	}
	return "unknown"
}

// Source locates a guest module
type Source struct {
	location string
	data     []byte
	kind     SourceKind
}

// FromBytes uses an in-memory module. The slice is not copied.
func FromBytes(b []byte) Source {
	return Source{kind: SourceBytes, data: b}
}

// FromFile reads the module from a local path
func FromFile(path string) Source {
	return Source{kind: SourceFile, location: path}
}

// FromURL downloads the module over http or https
func FromURL(u string) Source {
	return Source{kind: SourceURL, location: u}
}

// ParseSource classifies a locator: http and https URLs download, file
// URLs and plain paths read from disk. Other schemes are rejected.
func ParseSource(locator string) (Source, error) {
	if locator == "" {
		return Source{}, errors.InvalidInput(errors.PhaseFetch, "empty module locator")
	}
	if !strings.Contains(locator, "://") {
		return FromFile(locator), nil
	}

	u, err := url.Parse(locator)
	if err != nil {
		return Source{}, errors.Wrap(errors.PhaseFetch, errors.KindInvalidInput, err, "parse module locator")
	}
	switch u.Scheme {
	case "http", "https":
		return FromURL(locator), nil
	case "file":
		return FromFile(u.Path), nil
	}
	return Source{}, errors.Unsupported(errors.PhaseFetch, fmt.Sprintf("module scheme %q", u.Scheme))
}

// Kind returns the source kind
func (s Source) Kind() SourceKind {
	return s.kind
}

// Location returns the path or URL, empty for byte sources.
func (s Source) Location() string {
	return s.location
}

func (s Source) String() string {
	if s.kind == SourceBytes {
		return fmt.Sprintf("bytes(%d)", len(s.data))
	}
	return s.location
}
