package collection

import (
	"log"
	"sort"

	"github.com/nci/gocube/utils"
)

// BandFilter restricts and optionally renames the asset-to-band
// mapping. An empty Bands list keeps every band an image offers.
type BandFilter struct {
	Bands  []string
	Rename map[string]string
}

// QualityPredicate is a pure function over image metadata. Images for
// which it returns false are excluded from the collection.
type QualityPredicate func(img *Image) bool

// Build assembles a collection from resolved image descriptors.
// Images failing the quality predicate, or retaining no band after
// filtering, or carrying a band type conflicting with the collection
// vocabulary, are dropped with a warning. Zero surviving images is an
// EmptyCollectionError.
func Build(name string, images []*Image, filter *BandFilter, pred QualityPredicate) (*Collection, error) {
	coll := &Collection{
		Name:      name,
		BandTypes: make(map[string]string),
	}

	keep := make(map[string]bool)
	if filter != nil {
		for _, b := range filter.Bands {
			keep[b] = true
		}
	}

	dropped := 0
	for _, img := range images {
		if pred != nil && !pred(img) {
			dropped++
			continue
		}

		bands := make(map[string]*BandAsset)
		for bandName, asset := range img.Bands {
			if filter != nil {
				if len(keep) > 0 && !keep[bandName] {
					continue
				}
				if renamed, ok := filter.Rename[bandName]; ok {
					bandName = renamed
				}
			}
			bands[bandName] = asset
		}

		if len(bands) == 0 {
			log.Printf("collection %s: image %s has none of the requested bands, dropping", name, img.ID)
			dropped++
			continue
		}

		conflict := ""
		for bandName, asset := range bands {
			if known, ok := coll.BandTypes[bandName]; ok && known != asset.RasterType {
				conflict = bandName
				break
			}
		}
		if len(conflict) > 0 {
			log.Printf("collection %s: image %s band %s type conflicts with collection vocabulary, dropping",
				name, img.ID, conflict)
			dropped++
			continue
		}

		for bandName, asset := range bands {
			if _, ok := coll.BandTypes[bandName]; !ok {
				coll.BandTypes[bandName] = asset.RasterType
				coll.BandNames = append(coll.BandNames, bandName)
			}
		}

		kept := *img
		kept.Bands = bands
		coll.Images = append(coll.Images, &kept)
	}

	if len(coll.Images) == 0 {
		return nil, &utils.EmptyCollectionError{Dropped: dropped}
	}

	// Deterministic ordering regardless of descriptor source.
	sort.Slice(coll.Images, func(i, j int) bool {
		if !coll.Images[i].TimeStamp.Equal(coll.Images[j].TimeStamp) {
			return coll.Images[i].TimeStamp.Before(coll.Images[j].TimeStamp)
		}
		return coll.Images[i].ID < coll.Images[j].ID
	})
	sort.Strings(coll.BandNames)

	return coll, nil
}
