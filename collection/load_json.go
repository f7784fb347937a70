package collection

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nci/gocube/utils"
)

type imageDoc struct {
	ID        string                `json:"id"`
	Timestamp string                `json:"timestamp"`
	Polygon   string                `json:"polygon"`
	CRS       string                `json:"crs"`
	Bands     map[string]*BandAsset `json:"bands"`
	Metadata  map[string]float64    `json:"metadata"`
}

type imageManifest struct {
	Images []*imageDoc `json:"images"`
}

func (doc *imageDoc) toImage() (*Image, error) {
	ts, err := time.Parse(utils.ISOFormat, doc.Timestamp)
	if err != nil {
		// crawler output also carries bare RFC3339 stamps
		ts, err = time.Parse(time.RFC3339, doc.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("image %s: invalid timestamp %v", doc.ID, doc.Timestamp)
		}
	}

	if len(doc.Bands) == 0 {
		return nil, fmt.Errorf("image %s: no band assets", doc.ID)
	}

	return &Image{
		ID:        doc.ID,
		TimeStamp: ts.UTC(),
		Polygon:   doc.Polygon,
		CRS:       doc.CRS,
		Bands:     doc.Bands,
		Metadata:  doc.Metadata,
	}, nil
}

// LoadJSONFile reads a crawler manifest of image descriptors. The file
// is either a JSON array of images or an object with an "images" key.
func LoadJSONFile(path string) ([]*Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Error while reading manifest file: %s. Error: %v", path, err)
	}
	return ParseJSONManifest(raw)
}

func ParseJSONManifest(raw []byte) ([]*Image, error) {
	var docs []*imageDoc
	if err := json.Unmarshal(raw, &docs); err != nil {
		var manifest imageManifest
		if err2 := json.Unmarshal(raw, &manifest); err2 != nil {
			return nil, fmt.Errorf("Problem parsing JSON manifest. Error: %v", err)
		}
		docs = manifest.Images
	}

	var images []*Image
	for _, doc := range docs {
		img, err := doc.toImage()
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}
