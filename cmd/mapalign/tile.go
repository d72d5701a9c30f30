package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sugarme/mapalign/data"
)

func newTileCmd() *cobra.Command {
	var cfg data.TileConfig

	cmd := &cobra.Command{
		Use:   "tile",
		Short: "Cut an annotated scene into training tiles",
		Long: `Tile downscales a scene, walks a regular grid over it, clips the
polygon layer to every window and writes a png plus annotation sidecar
per kept tile. A CSV index of the written tiles lands next to them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := data.Tile(cfg)
			if err != nil {
				return err
			}
			if len(written) == 0 {
				return fmt.Errorf("no tiles kept from %v", cfg.Image)
			}

			indexPath := filepath.Join(cfg.OutDir, "index.csv")
			if err := data.BuildIndex(written, indexPath); err != nil {
				return err
			}

			fmt.Printf("Wrote %v tiles and %v\n", len(written), indexPath)

			return nil
		},
	}

	cmd.Flags().StringVarP(&cfg.Image, "image", "i", "", "source scene raster (png, jpeg or tiff)")
	cmd.Flags().StringVarP(&cfg.Annotation, "annotation", "a", "", "polygon sidecar over the scene")
	cmd.Flags().StringVarP(&cfg.OutDir, "out", "o", "data/tiles", "output tile directory")
	cmd.Flags().IntVar(&cfg.TileSize, "size", 256, "square tile edge in pixels")
	cmd.Flags().IntVar(&cfg.Stride, "stride", 0, "grid step in pixels, 0 means the tile size")
	cmd.Flags().Float64Var(&cfg.Reduction, "reduction", 1, "downscale factor applied before tiling")
	cmd.Flags().BoolVar(&cfg.KeepEmpty, "keep-empty", false, "keep tiles without any polygon")
	cmd.Flags().IntVar(&cfg.Workers, "workers", 0, "concurrent tile writers, 0 picks from GOMAXPROCS")
	cobra.CheckErr(cmd.MarkFlagRequired("image"))
	cobra.CheckErr(cmd.MarkFlagRequired("annotation"))

	return cmd
}
