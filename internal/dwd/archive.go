package dwd

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
)

// productMarker prefixes the data file inside a DWD station archive
// ("produkt_klima_tag_..."); the other entries are metadata.
const productMarker = "pro"

// extractProduct parses the first product file of a zip archive held in
// memory. found is false when the archive has no product file.
func extractProduct(data []byte) (t *Table, found bool, err error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, false, fmt.Errorf("open archive: %w", err)
	}

	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, productMarker) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, true, fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer rc.Close()

		t, err := ParseTable(rc)
		if err != nil {
			return nil, true, fmt.Errorf("parse %s: %w", f.Name, err)
		}
		return t, true, nil
	}
	return nil, false, nil
}
