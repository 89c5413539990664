package asset

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Resource kwargs used by file-series specs.
const (
	KwargTemplate = "template"
	KwargFilename = "filename"

	// KwargPointNumber is the datum kwarg selecting a file in a series.
	KwargPointNumber = "point_number"
)

// SeriesLayout returns the resource path and kwargs for a new file series
// under a dated directory: YYYY/MM/DD/ with files named <uuid>_<n>.<ext>.
func SeriesLayout(now time.Time, ext string) (resourcePath string, kwargs map[string]string) {
	resourcePath = now.Format("2006/01/02") + string(filepath.Separator)
	kwargs = map[string]string{
		KwargTemplate: "%s%s_%d." + ext,
		KwargFilename: uuid.NewString(),
	}
	return resourcePath, kwargs
}

// ResolvePath returns the file holding the payload of d.
//
// Resources with a template kwarg describe a file series: the template is
// filled with the resource directory, the filename kwarg and the datum's
// point_number. Other resources name a single file.
func ResolvePath(res Resource, d Datum) (string, error) {
	if d.ResourceID != res.ID {
		return "", fmt.Errorf("%w: datum %s belongs to %s", ErrUnknownResource, d.ID, d.ResourceID)
	}

	dir := filepath.Join(res.Root, res.ResourcePath)
	template, ok := res.Kwargs[KwargTemplate]
	if !ok {
		return dir, nil
	}

	point, ok := intKwarg(d.Kwargs, KwargPointNumber)
	if !ok {
		return "", fmt.Errorf("%w: datum %s has no %s", ErrUnsupportedFormat, d.ID, KwargPointNumber)
	}
	return fmt.Sprintf(template, dir+string(filepath.Separator), res.Kwargs[KwargFilename], point), nil
}
