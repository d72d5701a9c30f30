package data

import (
	"image"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// BuildIndex summarizes tile sidecars into a CSV index with one row per
// tile: file, size, polygon count and footprint coverage. The coverage
// column feeds sampling and EDA without re-rasterizing every tile.
func BuildIndex(annPaths []string, csvPath string) error {
	var (
		files     []string
		widths    []int
		heights   []int
		polyCount []int
		coverages []float64
	)

	for _, p := range annPaths {
		ann, err := LoadAnnotation(p)
		if err != nil {
			return err
		}

		mask := Rasterize(ann.Polygons, ann.Width, ann.Height)
		files = append(files, p)
		widths = append(widths, ann.Width)
		heights = append(heights, ann.Height)
		polyCount = append(polyCount, len(ann.Polygons))
		coverages = append(coverages, maskCoverage(mask))
	}

	df := dataframe.New(
		series.New(files, series.String, "file"),
		series.New(widths, series.Int, "width"),
		series.New(heights, series.Int, "height"),
		series.New(polyCount, series.Int, "polygons"),
		series.New(coverages, series.Float, "coverage"),
	)

	f, err := os.Create(csvPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return df.WriteCSV(f)
}

// LoadIndex reads a CSV index written by BuildIndex.
func LoadIndex(csvPath string) (dataframe.DataFrame, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	defer f.Close()

	df := dataframe.ReadCSV(f, dataframe.HasHeader(true))

	return df, df.Err
}

func maskCoverage(mask *image.Alpha) float64 {
	var sum int64
	for _, a := range mask.Pix {
		sum += int64(a)
	}

	return float64(sum) / (255 * float64(len(mask.Pix)))
}
