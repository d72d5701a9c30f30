package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/mapalign/config"
	"github.com/sugarme/mapalign/data"
	"github.com/sugarme/mapalign/dunet"
	"github.com/sugarme/mapalign/dutil"
	"github.com/sugarme/mapalign/metric"
)

func newEvalCmd() *cobra.Command {
	var (
		cfgPath    string
		checkpoint string
	)

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Report per-level displacement error for a checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(cfgPath, checkpoint)
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "mapalign.yaml", "run configuration")
	cmd.Flags().StringVarP(&checkpoint, "checkpoint", "w", "", "trained weights")
	cobra.CheckErr(cmd.MarkFlagRequired("checkpoint"))

	return cmd
}

func runEval(cfgPath, checkpoint string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Verify(); err != nil {
		return err
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

	ds, err := data.NewAlignDataset(cfg.DatasetConfig(false))
	if err != nil {
		return err
	}
	sampler, err := dutil.NewBatchSampler(ds.Len(), cfg.Train.BatchSize, false, false)
	if err != nil {
		return err
	}
	dl, err := dutil.NewDataLoader(ds, sampler)
	if err != nil {
		return err
	}

	outSize := dunet.OutputSize(int64(cfg.Data.TileSize), cfg.Model.PoolCount)
	levels := cfg.Model.PoolCount

	perLevel := make([][]float64, levels)
	var dices []float64
	for dl.HasNext() {
		item, err := dl.Next()
		if err != nil {
			return err
		}

		image, polyMap, dispTarget, segTarget := data.Batch(item.([]data.Sample), device)
		dispT := dunet.CropOrPad(dispTarget, outSize, outSize, true)
		segT := dunet.CropOrPad(segTarget, outSize, outSize, true)

		var out dunet.Output
		ts.NoGrad(func() {
			out = net.ForwardT(image, polyMap, false)
		})

		// Coarse levels are upsampled onto the canonical grid, so every
		// level scores against the same target.
		_, dispStack := out.Displacement()
		for l := 0; l < levels; l++ {
			pred := dispStack.MustNarrow(1, int64(l), 1, false).MustSqueeze1(1, true)
			perLevel[l] = append(perLevel[l], metric.MeanDispError(pred, dispT))
			pred.MustDrop()
		}

		if segOut, ok := out.(*dunet.DispSegOutput); ok {
			prob, _ := segOut.Segmentation()
			dices = append(dices, metric.DiceCoeffBatch(prob, segT))
		}

		out.MustDrop()
		image.MustDrop()
		polyMap.MustDrop()
		dispT.MustDrop()
		segT.MustDrop()
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"LEVEL", "DISP ERROR", "PIXELS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	for l := 0; l < levels; l++ {
		errNorm := avg(perLevel[l])
		table.Append([]string{
			fmt.Sprintf("%v", l),
			fmt.Sprintf("%.4f", errNorm),
			fmt.Sprintf("%.2f", errNorm*cfg.Data.MaxDisp),
		})
	}
	table.Render()

	if len(dices) > 0 {
		fmt.Printf("Dice: %.4f\n", avg(dices))
	}

	return nil
}
