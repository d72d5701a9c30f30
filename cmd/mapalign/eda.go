package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sugarme/mapalign/data"
)

func newEDACmd() *cobra.Command {
	var (
		indexPath string
		outDir    string
	)

	cmd := &cobra.Command{
		Use:   "eda",
		Short: "Summarize a tile index and plot coverage histograms",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEDA(indexPath, outDir)
		},
	}

	cmd.Flags().StringVar(&indexPath, "index", "data/tiles/index.csv", "tile index csv")
	cmd.Flags().StringVarP(&outDir, "out", "o", "eda", "plot directory")

	return cmd
}

func runEDA(indexPath, outDir string) error {
	df, err := data.LoadIndex(indexPath)
	if err != nil {
		return err
	}

	coverage := df.Col("coverage").Float()
	polygons := df.Col("polygons").Float()

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"COLUMN", "MEAN", "MEDIAN", "P90"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	for _, col := range []struct {
		name string
		vals []float64
	}{
		{"coverage", coverage},
		{"polygons", polygons},
	} {
		sorted := append([]float64(nil), col.vals...)
		sort.Float64s(sorted)
		table.Append([]string{
			col.name,
			fmt.Sprintf("%.4f", stat.Mean(col.vals, nil)),
			fmt.Sprintf("%.4f", stat.Quantile(0.5, stat.Empirical, sorted, nil)),
			fmt.Sprintf("%.4f", stat.Quantile(0.9, stat.Empirical, sorted, nil)),
		})
	}
	fmt.Printf("Tiles: %v\n", df.Nrow())
	table.Render()

	if err := plotHist(filepath.Join(outDir, "coverage-hist.png"), "Footprint coverage", coverage); err != nil {
		return err
	}

	return plotHist(filepath.Join(outDir, "polygons-hist.png"), "Polygons per tile", polygons)
}

func plotHist(path, title string, vals []float64) error {
	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = title

	v := make(plotter.Values, len(vals))
	copy(v, vals)

	h, err := plotter.NewHist(v, 20)
	if err != nil {
		return err
	}
	p.Add(h)

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
