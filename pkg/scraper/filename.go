package scraper

import (
	"errors"
	"fmt"
	"strings"
)

// maxExtLen bounds what is accepted as an extension
const maxExtLen = 5

var errNoExtension = errors.New("no file extension")

// FilenameAndExt splits name into a normalized filename and its extension.
// The extension is lowercased and returned with its leading dot.
func FilenameAndExt(name string) (string, string, error) {
	name = strings.TrimSpace(name)
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return "", "", fmt.Errorf("%w: %q", errNoExtension, name)
	}

	base, ext := name[:i], strings.ToLower(name[i+1:])
	if len(ext) > maxExtLen {
		return "", "", fmt.Errorf("%w: %q", errNoExtension, name)
	}
	return base + "." + ext, "." + ext, nil
}
