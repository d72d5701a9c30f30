package main

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/mapalign/config"
	"github.com/sugarme/mapalign/data"
	"github.com/sugarme/mapalign/dunet"
	"github.com/sugarme/mapalign/dutil"
	"github.com/sugarme/mapalign/metric"
)

func newTrainCmd() *cobra.Command {
	var (
		cfgPath   string
		weights   string
		from      string
		dataDir   string
		device    string
		epochs    int
		batchSize int
		lr        float64
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the alignment model on synthesized tile samples",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			// Explicit flags win over the configuration file.
			if cmd.Flags().Changed("data-dir") {
				cfg.Data.Dir = dataDir
			}
			if cmd.Flags().Changed("device") {
				cfg.Train.Device = device
			}
			if cmd.Flags().Changed("epochs") {
				cfg.Train.Epochs = epochs
			}
			if cmd.Flags().Changed("batch-size") {
				cfg.Train.BatchSize = batchSize
			}
			if cmd.Flags().Changed("lr") {
				cfg.Train.LR = lr
			}
			if err := cfg.Verify(); err != nil {
				return err
			}

			return runTrain(cfg, weights, from)
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "mapalign.yaml", "run configuration")
	cmd.Flags().StringVar(&weights, "weights", "", "checkpoint to start from")
	cmd.Flags().StringVar(&from, "from", "checkpoint", "how to read --weights: checkpoint or scratch")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "tile directory")
	cmd.Flags().StringVar(&device, "device", "", "cpu or cuda")
	cmd.Flags().IntVar(&epochs, "epochs", 0, "training epochs")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "samples per batch")
	cmd.Flags().Float64Var(&lr, "lr", 0, "learning rate")

	return cmd
}

func loadWeights(vs *nn.VarStore, fpath, from string) error {
	modelPath, err := filepath.Abs(fpath)
	if err != nil {
		return err
	}

	switch from {
	case "checkpoint":
		return vs.Load(modelPath)
	case "scratch":
		// Warm start: take whatever variables match, keep the rest fresh.
		_, err = vs.LoadPartial(modelPath)
		return err
	default:
		return fmt.Errorf("Invalid load option. Expected 'checkpoint' or 'scratch'. Got: %v", from)
	}
}

func runTrain(cfg *config.Config, weights, from string) error {
	device := cfg.Device()
	vs := nn.NewVarStore(device)
	net, err := dunet.NewDoubleUNet(vs.Root(), cfg.ModelConfig())
	if err != nil {
		return err
	}
	if weights != "" {
		if err := loadWeights(vs, weights, from); err != nil {
			return err
		}
	}

	var opt *nn.Optimizer
	switch cfg.Train.Optimizer {
	case "sgd":
		opt, err = nn.NewSGDConfig(cfg.Train.Momentum, 0, cfg.Train.WeightDecay, true).Build(vs, cfg.Train.LR)
	case "adam":
		opt, err = nn.NewAdamConfig(0.9, 0.999, cfg.Train.WeightDecay).Build(vs, cfg.Train.LR)
	}
	if err != nil {
		return err
	}

	trainAll, err := data.NewAlignDataset(cfg.DatasetConfig(true))
	if err != nil {
		return err
	}
	valAll, err := data.NewAlignDataset(cfg.DatasetConfig(false))
	if err != nil {
		return err
	}

	n := trainAll.Len()
	cut := n - int(cfg.Data.ValFraction*float64(n))
	if cut < 1 {
		cut = 1
	}
	trainDS := trainAll.Subset(0, cut)
	valDS := valAll.Subset(cut, n)

	sampler, err := dutil.NewBatchSampler(trainDS.Len(), cfg.Train.BatchSize, true, true)
	if err != nil {
		return err
	}
	trainDL, err := dutil.NewDataLoader(trainDS, sampler)
	if err != nil {
		return err
	}

	var valDL *dutil.DataLoader
	if valDS.Len() > 0 {
		vSampler, err := dutil.NewBatchSampler(valDS.Len(), cfg.Train.BatchSize, false, false)
		if err != nil {
			return err
		}
		if valDL, err = dutil.NewDataLoader(valDS, vSampler); err != nil {
			return err
		}
	}

	runDir := filepath.Join(cfg.Train.CheckpointDir, uuid.NewString())
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return err
	}
	if err := cfg.Save(filepath.Join(runDir, "config.yaml")); err != nil {
		return err
	}
	fmt.Printf("Run directory: %v\n", runDir)
	fmt.Printf("Training on %v tiles, validating on %v\n", trainDS.Len(), valDS.Len())

	outSize := dunet.OutputSize(int64(cfg.Data.TileSize), cfg.Model.PoolCount)
	levelWeights := cfg.LevelWeights()

	var trainCurve, valCurve plotter.XYs
	best := math.Inf(1)
	for e := 0; e < cfg.Train.Epochs; e++ {
		start := time.Now()
		trainDL.Reset()

		var losses []float64
		for trainDL.HasNext() {
			item, err := trainDL.Next()
			if err != nil {
				return err
			}

			losses = append(losses, trainStep(net, opt, item.([]data.Sample), device, outSize, levelWeights, cfg))
		}

		tloss := avg(losses)
		trainCurve = append(trainCurve, plotter.XY{X: float64(e), Y: tloss})

		if valDL == nil {
			fmt.Printf("Epoch %02d\t train loss: %6.4f\t Taken time: %0.2fMin\n", e, tloss, time.Since(start).Minutes())
			continue
		}

		dispErr, dice, err := validate(net, valDL, device, outSize)
		if err != nil {
			return err
		}
		valCurve = append(valCurve, plotter.XY{X: float64(e), Y: dispErr})
		fmt.Printf("Epoch %02d\t train loss: %6.4f\t val disp: %6.4f\t val dice: %6.4f\t Taken time: %0.2fMin\n",
			e, tloss, dispErr, dice, time.Since(start).Minutes())

		if dispErr < best {
			best = dispErr
			if err := vs.Save(filepath.Join(runDir, "best.gt")); err != nil {
				return err
			}
		}
	}

	if err := vs.Save(filepath.Join(runDir, "final.gt")); err != nil {
		return err
	}

	return plotCurves(filepath.Join(runDir, "curves.png"), trainCurve, valCurve)
}

// trainStep runs one optimization step and returns the batch loss.
func trainStep(net *dunet.DoubleUNet, opt *nn.Optimizer, samples []data.Sample, device gotch.Device, outSize int64, levelWeights []float64, cfg *config.Config) float64 {
	image, polyMap, dispTarget, segTarget := data.Batch(samples, device)

	// Targets crop to the canonical output grid of the decoders.
	dispT := dunet.CropOrPad(dispTarget, outSize, outSize, true)
	segT := dunet.CropOrPad(segTarget, outSize, outSize, true)

	out := net.ForwardT(image, polyMap, true)

	_, dispStack := out.Displacement()
	// Displacement supervision concentrates on the footprints, where the
	// correction actually moves vertices.
	loss := metric.MultiLevelDispLoss(dispStack, dispT, segT, levelWeights).
		MustMul1(ts.FloatScalar(cfg.Train.DispWeight), true)

	if segOut, ok := out.(*dunet.DispSegOutput); ok {
		_, segStack := segOut.Segmentation()
		segLoss := metric.MultiLevelSegLoss(segStack, segT, levelWeights).
			MustMul1(ts.FloatScalar(cfg.Train.SegWeight), true)
		total := loss.MustAdd(segLoss, true)
		segLoss.MustDrop()
		loss = total
	}

	opt.BackwardStep(loss)
	lossVal := loss.Float64Values()[0]

	loss.MustDrop()
	out.MustDrop()
	image.MustDrop()
	polyMap.MustDrop()
	dispT.MustDrop()
	segT.MustDrop()

	return lossVal
}

func validate(net *dunet.DoubleUNet, dl *dutil.DataLoader, device gotch.Device, outSize int64) (dispErr, dice float64, err error) {
	dl.Reset()

	var (
		dispErrs []float64
		dices    []float64
	)
	for dl.HasNext() {
		item, err := dl.Next()
		if err != nil {
			return 0, 0, err
		}

		image, polyMap, dispTarget, segTarget := data.Batch(item.([]data.Sample), device)
		dispT := dunet.CropOrPad(dispTarget, outSize, outSize, true)
		segT := dunet.CropOrPad(segTarget, outSize, outSize, true)

		var out dunet.Output
		ts.NoGrad(func() {
			out = net.ForwardT(image, polyMap, false)
		})

		disp, _ := out.Displacement()
		dispErrs = append(dispErrs, metric.MeanDispError(disp, dispT))

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

	if len(dices) == 0 {
		return avg(dispErrs), 0, nil
	}

	return avg(dispErrs), avg(dices), nil
}

func avg(input []float64) float64 {
	var sum float64
	for _, v := range input {
		sum += v
	}

	return sum / float64(len(input))
}

// plotCurves draws the train loss and validation displacement error over
// epochs.
func plotCurves(path string, train, val plotter.XYs) error {
	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = "Training"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "loss / pixel error"

	trainLine, err := plotter.NewLine(train)
	if err != nil {
		return err
	}
	p.Add(trainLine)
	p.Legend.Add("train loss", trainLine)

	if len(val) > 0 {
		valLine, err := plotter.NewLine(val)
		if err != nil {
			return err
		}
		valLine.Color = color.RGBA{R: 255, A: 255}
		p.Add(valLine)
		p.Legend.Add("val disp error", valLine)
	}

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
