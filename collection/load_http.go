package collection

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nci/gocube/utils"
)

// IndexClient queries a remote image metadata index (see index/api)
// for descriptors intersecting a spatio-temporal window. The index
// returns already-resolved descriptors; catalog search itself lives
// outside this repository.
type IndexClient struct {
	Address string
	Verbose bool
}

func NewIndexClient(address string, verbose bool) *IndexClient {
	return &IndexClient{Address: address, Verbose: verbose}
}

func (c *IndexClient) Query(collection string, bbox utils.Extent, srs string, startTime time.Time, endTime *time.Time) ([]*Image, error) {
	url := fmt.Sprintf("http://%s/%s?intersects&time=%s&srs=%s&wkt=%s",
		c.Address, collection, startTime.Format(utils.ISOFormat), srs, BBox2WKT(bbox))
	if endTime != nil {
		url += fmt.Sprintf("&until=%s", endTime.Format(utils.ISOFormat))
	}
	url = strings.Replace(url, " ", "%20", -1)

	if c.Verbose {
		fmt.Printf("index query: %s\n", url)
	}

	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("GET request to %s failed. Error: %v", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("Error reading response body from %s. Error: %v", url, err)
	}

	images, err := ParseJSONManifest(body)
	if err != nil {
		return nil, fmt.Errorf("Problem parsing JSON response from %s. Error: %v", url, err)
	}
	return images, nil
}
