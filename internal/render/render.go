// Package render turns incoming scan files into page images. Scanned
// faxes arrive as PDFs whose pages each wrap a single raster image, or
// as TIFF files; rendering means pulling those rasters out, not
// rasterizing vector content.
package render

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/image/tiff"
)

// SupportedExtensions lists the file types the engine accepts.
var SupportedExtensions = []string{".pdf", ".tif", ".tiff"}

// IsSupported reports whether path has a supported extension.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Pages decodes the page images of a scan file in page order.
func Pages(path string) ([]image.Image, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return pdfPages(path)
	case ".tif", ".tiff":
		return tiffPages(path)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

// PageCount returns the number of pages without decoding bitmaps.
func PageCount(path string) (int, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return api.PageCountFile(path)
	case ".tif", ".tiff":
		pages, err := tiffPages(path)
		if err != nil {
			return 0, err
		}
		return len(pages), nil
	default:
		return 0, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

// pdfPages extracts the embedded raster of every page. pdfcpu writes
// files named page_<num>_<id>.<ext> into the target directory; the page
// number keys the ordering. Every page must yield an image: a page
// without an extractable raster would silently shrink the document, so
// the extracted set is checked against the PDF's page count.
func pdfPages(path string) ([]image.Image, error) {
	tempDir, err := os.MkdirTemp("", "render-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	if err := api.ExtractImagesFile(path, tempDir, nil, nil); err != nil {
		return nil, fmt.Errorf("extracting page images from %s: %w", filepath.Base(path), err)
	}

	byPage := map[int]image.Image{}
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		pageNum, err := pageFromFilename(e.Name())
		if err != nil {
			continue
		}
		// Keep the first image per page; fax pages carry exactly one.
		if _, ok := byPage[pageNum]; ok {
			continue
		}
		img, err := loadImage(filepath.Join(tempDir, e.Name()))
		if err != nil {
			continue
		}
		byPage[pageNum] = img
	}

	if len(byPage) == 0 {
		return nil, fmt.Errorf("no page images found in %s", filepath.Base(path))
	}

	total, err := api.PageCountFile(path)
	if err != nil {
		return nil, fmt.Errorf("counting pages of %s: %w", filepath.Base(path), err)
	}
	if missing := missingPages(byPage, total); len(missing) > 0 {
		return nil, fmt.Errorf("no raster image for page(s) %v of %s", missing, filepath.Base(path))
	}

	nums := make([]int, 0, len(byPage))
	for n := range byPage {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	pages := make([]image.Image, 0, len(nums))
	for _, n := range nums {
		pages = append(pages, byPage[n])
	}
	return pages, nil
}

// missingPages lists the 1-based page numbers of a total-page document
// that have no extracted image, in order.
func missingPages(byPage map[int]image.Image, total int) []int {
	var missing []int
	for n := 1; n <= total; n++ {
		if _, ok := byPage[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

// tiffPages decodes a TIFF scan. Fax TIFFs from the upstream scanner are
// single page; multi-page TIFF containers are out of scope here.
func tiffPages(path string) ([]image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := tiff.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return []image.Image{img}, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	return img, err
}

// pageFromFilename parses the page number out of a pdfcpu extract name
// such as page_2_Im0.png.
func pageFromFilename(name string) (int, error) {
	rest, ok := strings.CutPrefix(name, "page_")
	if !ok {
		return 0, fmt.Errorf("not a page file: %s", name)
	}
	parts := strings.SplitN(rest, "_", 2)
	num, err := strconv.Atoi(strings.TrimSuffix(parts[0], filepath.Ext(parts[0])))
	if err != nil {
		return 0, fmt.Errorf("no page number in %s", name)
	}
	return num, nil
}
