package main

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/mapalign/config"
	"github.com/sugarme/mapalign/data"
	"github.com/sugarme/mapalign/dunet"
)

func newPredictCmd() *cobra.Command {
	var (
		cfgPath    string
		checkpoint string
		imgPath    string
		annPath    string
		outDir     string
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Align a polygon layer to an image tile",
		Long: `Predict runs the model on one tile and its misaligned polygon layer,
moves every vertex by the predicted correction and writes the aligned
sidecar plus inspection rasters into the output directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cfgPath, checkpoint, imgPath, annPath, outDir)
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "mapalign.yaml", "run configuration")
	cmd.Flags().StringVarP(&checkpoint, "checkpoint", "w", "", "trained weights")
	cmd.Flags().StringVarP(&imgPath, "image", "i", "", "image tile")
	cmd.Flags().StringVarP(&annPath, "annotation", "a", "", "misaligned polygon sidecar")
	cmd.Flags().StringVarP(&outDir, "out", "o", "predictions", "output directory")
	cobra.CheckErr(cmd.MarkFlagRequired("checkpoint"))
	cobra.CheckErr(cmd.MarkFlagRequired("image"))
	cobra.CheckErr(cmd.MarkFlagRequired("annotation"))

	return cmd
}

func runPredict(cfgPath, checkpoint, imgPath, annPath, outDir string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Verify(); err != nil {
		return err
	}

	img, err := data.ReadImage(imgPath)
	if err != nil {
		return err
	}
	ann, err := data.LoadAnnotation(annPath)
	if err != nil {
		return err
	}

	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	if !dunet.ValidInputSize(int64(w), cfg.Model.PoolCount) || !dunet.ValidInputSize(int64(h), cfg.Model.PoolCount) {
		return fmt.Errorf("tile %vx%v shrinks to nothing inside a %v pool model", w, h, cfg.Model.PoolCount)
	}

	device := cfg.Device()
	vs := nn.NewVarStore(device)
	net, err := dunet.NewDoubleUNet(vs.Root(), cfg.ModelConfig())
	if err != nil {
		return err
	}
	if err := vs.Load(checkpoint); err != nil {
		return err
	}

	imageTs := data.ImageTensor(img).MustUnsqueeze(0, true).MustTo(device, true)
	polyTs := data.MaskTensor(data.Rasterize(ann.Polygons, w, h)).MustUnsqueeze(0, true).MustTo(device, true)

	var out dunet.Output
	ts.NoGrad(func() {
		out = net.ForwardT(imageTs, polyTs, false)
	})
	imageTs.MustDrop()
	polyTs.MustDrop()

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}

	disp, _ := out.Displacement()
	field := fieldFromTensor(disp, cfg.Data.MaxDisp)

	// The canonical output grid sits centered inside the input tile.
	offX := float64((w - field.W) / 2)
	offY := float64((h - field.H) / 2)
	aligned := make([]data.Polygon, len(ann.Polygons))
	for i, p := range ann.Polygons {
		aligned[i] = field.Displace(p.Translate(-offX, -offY)).Translate(offX, offY)
	}

	alignedAnn := &data.Annotation{
		Image:    filepath.Base(imgPath),
		Width:    w,
		Height:   h,
		Polygons: aligned,
	}
	if err := alignedAnn.Save(filepath.Join(outDir, "aligned.json")); err != nil {
		return err
	}

	if segOut, ok := out.(*dunet.DispSegOutput); ok {
		prob, _ := segOut.Segmentation()
		if err := data.WritePNG(filepath.Join(outDir, "seg.png"), data.GrayImage(prob)); err != nil {
			return err
		}
	}

	overlay := data.Overlay(img, data.Rasterize(aligned, w, h), color.NRGBA{R: 255, A: 96})
	if err := data.WritePNG(filepath.Join(outDir, "overlay.png"), overlay); err != nil {
		return err
	}

	var sum float64
	for i := range field.Dx {
		sum += math.Hypot(field.Dx[i], field.Dy[i])
	}
	fmt.Printf("Aligned %v polygons, mean correction %.2f px, results in %v\n",
		len(aligned), sum/float64(len(field.Dx)), outDir)

	out.MustDrop()

	return nil
}

// fieldFromTensor unpacks a (1, 2, h, w) normalized correction into a
// pixel-unit field.
func fieldFromTensor(disp *ts.Tensor, maxDisp float64) *data.Field {
	size := disp.MustSize()
	h := int(size[2])
	w := int(size[3])

	vals := disp.MustTotype(gotch.Double, false)
	flat := vals.Float64Values()
	vals.MustDrop()

	f := data.NewField(w, h)
	plane := w * h
	for i := 0; i < plane; i++ {
		f.Dx[i] = flat[i] * maxDisp
		f.Dy[i] = flat[plane+i] * maxDisp
	}

	return f
}
