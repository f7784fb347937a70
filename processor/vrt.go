package processor

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/CloudyKit/jet"

	"github.com/nci/gocube/collection"
)

const DefaultVRTTemplate = "granule_vrt.tpl"

type vrtBand struct {
	Index    int
	DataType string
	NoData   float64
	Path     string
}

type vrtContext struct {
	Width        int
	Height       int
	SRS          string
	GeoTransform string
	Bands        []*vrtBand
}

// VRTComposer renders multi-band VRT documents stacking co-registered
// band assets of one image, so the warper opens the image once instead
// of once per band.
type VRTComposer struct {
	template *jet.Template
}

func NewVRTComposer(templateDir, templateFile string) (*VRTComposer, error) {
	view := jet.NewSet(jet.SafeWriter(func(w io.Writer, b []byte) {
		w.Write(b)
	}), templateDir, "/")

	template, err := view.GetTemplate(templateFile)
	if err != nil {
		return nil, fmt.Errorf("VRT template %s: %v", templateFile, err)
	}
	return &VRTComposer{template: template}, nil
}

// Compose renders a VRT over the named bands of one image, in order.
// Callers verify asset geometry with SameGeometry beforehand; the
// first asset provides the grid.
func (c *VRTComposer) Compose(img *collection.Image, nameSpaces []string) (string, error) {
	if len(nameSpaces) == 0 {
		return "", fmt.Errorf("VRT for image %s: no bands requested", img.ID)
	}

	first, ok := img.Bands[nameSpaces[0]]
	if !ok {
		return "", fmt.Errorf("VRT for image %s: no asset for band %s", img.ID, nameSpaces[0])
	}

	gt := make([]string, len(first.Geotransform))
	for i, v := range first.Geotransform {
		gt[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}

	ctx := &vrtContext{
		Width:        first.Width,
		Height:       first.Height,
		SRS:          img.CRS,
		GeoTransform: strings.Join(gt, ", "),
	}

	for i, ns := range nameSpaces {
		asset, ok := img.Bands[ns]
		if !ok {
			return "", fmt.Errorf("VRT for image %s: no asset for band %s", img.ID, ns)
		}
		ctx.Bands = append(ctx.Bands, &vrtBand{
			Index:    i + 1,
			DataType: asset.RasterType,
			NoData:   asset.NoData,
			Path:     asset.Path,
		})
	}

	var resBuf bytes.Buffer
	vars := make(jet.VarMap)
	if err := c.template.Execute(&resBuf, vars, ctx); err != nil {
		return "", fmt.Errorf("VRT template error: %v", err)
	}
	return resBuf.String(), nil
}
