package asset

import "fmt"

// Catalog indexes resource and datum documents by id so that datums can be
// filled from external storage.
type Catalog struct {
	resources map[string]Resource
	datums    map[string]Datum
	order     []string // datum ids, in document order
}

// NewCatalog indexes docs. Later documents with the same id replace earlier
// ones.
func NewCatalog(docs []Document) *Catalog {
	c := &Catalog{
		resources: make(map[string]Resource),
		datums:    make(map[string]Datum),
	}
	for _, d := range docs {
		switch {
		case d.Resource != nil:
			c.resources[d.Resource.ID] = *d.Resource
		case d.Datum != nil:
			if _, seen := c.datums[d.Datum.ID]; !seen {
				c.order = append(c.order, d.Datum.ID)
			}
			c.datums[d.Datum.ID] = *d.Datum
		}
	}
	return c
}

// Resources returns the number of indexed resources.
func (c *Catalog) Resources() int { return len(c.resources) }

// Datums returns the indexed datum ids in document order.
func (c *Catalog) Datums() []string { return c.order }

// Lookup returns datum id and the resource it belongs to.
func (c *Catalog) Lookup(id string) (Resource, Datum, error) {
	d, ok := c.datums[id]
	if !ok {
		return Resource{}, Datum{}, fmt.Errorf("%w: %s", ErrUnknownDatum, id)
	}
	res, ok := c.resources[d.ResourceID]
	if !ok {
		return Resource{}, Datum{}, fmt.Errorf("%w: %s (datum %s)", ErrUnknownResource, d.ResourceID, id)
	}
	return res, d, nil
}

// Fill loads the array behind datum id.
func (c *Catalog) Fill(id string) (Array, error) {
	res, d, err := c.Lookup(id)
	if err != nil {
		return Array{}, err
	}
	return Fill(res, d)
}

// Fill loads the array d references from the files of res. Only the file
// series specs written by this package can be read back.
func Fill(res Resource, d Datum) (Array, error) {
	path, err := ResolvePath(res, d)
	if err != nil {
		return Array{}, err
	}
	switch res.Spec {
	case SpecNPY:
		return ReadNPY(path)
	case SpecTIFF:
		return ReadTIFF(path)
	default:
		return Array{}, fmt.Errorf("%w: cannot fill %s resources", ErrUnsupportedFormat, res.Spec)
	}
}
