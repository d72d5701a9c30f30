// Package config loads and validates the yaml run configuration shared
// by the command line tools.
package config

import (
	"errors"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/sugarme/gotch"

	"github.com/sugarme/mapalign/data"
	"github.com/sugarme/mapalign/dunet"
)

var ErrConfigNotFound = errors.New("config file is not found")
var ErrConfigInvalid = errors.New("config is invalid")

// ModelConfig mirrors dunet.Config in yaml form.
type ModelConfig struct {
	ImageChannels   int64 `yaml:"imageChannels"`
	PolyMapChannels int64 `yaml:"polyMapChannels"`
	ImageBase       int64 `yaml:"imageBase"`
	PolyMapBase     int64 `yaml:"polyMapBase"`
	CommonBase      int64 `yaml:"commonBase"`
	PoolCount       int   `yaml:"poolCount"`
	DispChannels    int64 `yaml:"dispChannels"`
	AddSeg          bool  `yaml:"addSeg"`
	SegChannels     int64 `yaml:"segChannels"`
}

// DataConfig locates the tile set and shapes sample synthesis.
type DataConfig struct {
	Dir         string  `yaml:"dir"`
	TileSize    int     `yaml:"tileSize"`
	MaxDisp     float64 `yaml:"maxDisp"`
	GridStep    int     `yaml:"gridStep"`
	ValFraction float64 `yaml:"valFraction"`
	Seed        int64   `yaml:"seed"`
}

// TrainConfig shapes the optimization run.
type TrainConfig struct {
	Device        string    `yaml:"device"` // cpu or cuda
	Epochs        int       `yaml:"epochs"`
	BatchSize     int       `yaml:"batchSize"`
	LR            float64   `yaml:"lr"`
	Optimizer     string    `yaml:"optimizer"` // adam or sgd
	WeightDecay   float64   `yaml:"weightDecay"`
	Momentum      float64   `yaml:"momentum"`
	DispWeight    float64   `yaml:"dispWeight"`
	SegWeight     float64   `yaml:"segWeight"`
	LevelWeights  []float64 `yaml:"levelWeights,omitempty"`
	CheckpointDir string    `yaml:"checkpointDir"`
}

// Config is the full run configuration.
type Config struct {
	Model ModelConfig `yaml:"model"`
	Data  DataConfig  `yaml:"data"`
	Train TrainConfig `yaml:"train"`
}

// Default returns a configuration that trains a mid-size model on 256
// pixel tiles.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			ImageChannels:   3,
			PolyMapChannels: 1,
			ImageBase:       16,
			PolyMapBase:     8,
			CommonBase:      32,
			PoolCount:       3,
			DispChannels:    2,
			AddSeg:          true,
			SegChannels:     1,
		},
		Data: DataConfig{
			Dir:         "data/tiles",
			TileSize:    256,
			MaxDisp:     8,
			GridStep:    32,
			ValFraction: 0.1,
			Seed:        42,
		},
		Train: TrainConfig{
			Device:        "cpu",
			Epochs:        30,
			BatchSize:     4,
			LR:            1e-4,
			Optimizer:     "adam",
			Momentum:      0.9,
			DispWeight:    1.0,
			SegWeight:     0.5,
			CheckpointDir: "runs",
		},
	}
}

// Load reads a yaml configuration from file.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration as yaml.
func (c *Config) Save(path string) error {
	buf, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, buf, 0644)
}

// Verify checks the configuration.
//
// # Return
//
// nil if it is valid. Otherwise, ErrConfigInvalid error.
func (c *Config) Verify() error {
	if c.Model.PoolCount < 1 {
		return fmt.Errorf("%w: model.poolCount must be at least 1, got %v", ErrConfigInvalid, c.Model.PoolCount)
	}
	for name, v := range map[string]int64{
		"model.imageChannels":   c.Model.ImageChannels,
		"model.polyMapChannels": c.Model.PolyMapChannels,
		"model.imageBase":       c.Model.ImageBase,
		"model.polyMapBase":     c.Model.PolyMapBase,
		"model.commonBase":      c.Model.CommonBase,
		"model.dispChannels":    c.Model.DispChannels,
	} {
		if v < 1 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrConfigInvalid, name, v)
		}
	}
	if c.Model.AddSeg && c.Model.SegChannels < 1 {
		return fmt.Errorf("%w: model.segChannels must be positive, got %v", ErrConfigInvalid, c.Model.SegChannels)
	}

	if minSize := dunet.MinInputSize(c.Model.PoolCount); int64(c.Data.TileSize) < minSize {
		return fmt.Errorf(
			"%w: data.tileSize %v is below %v, the smallest input a %v pool model accepts",
			ErrConfigInvalid, c.Data.TileSize, minSize, c.Model.PoolCount,
		)
	}
	if c.Data.MaxDisp <= 0 {
		return fmt.Errorf("%w: data.maxDisp must be positive, got %v", ErrConfigInvalid, c.Data.MaxDisp)
	}
	if c.Data.GridStep < 1 {
		return fmt.Errorf("%w: data.gridStep must be at least 1, got %v", ErrConfigInvalid, c.Data.GridStep)
	}
	if c.Data.ValFraction < 0 || c.Data.ValFraction >= 1 {
		return fmt.Errorf("%w: data.valFraction must be in [0, 1), got %v", ErrConfigInvalid, c.Data.ValFraction)
	}

	if c.Train.Device != "cpu" && c.Train.Device != "cuda" {
		return fmt.Errorf("%w: train.device must be cpu or cuda, got %q", ErrConfigInvalid, c.Train.Device)
	}
	if c.Train.Epochs < 1 {
		return fmt.Errorf("%w: train.epochs must be at least 1, got %v", ErrConfigInvalid, c.Train.Epochs)
	}
	if c.Train.BatchSize < 1 {
		return fmt.Errorf("%w: train.batchSize must be at least 1, got %v", ErrConfigInvalid, c.Train.BatchSize)
	}
	if c.Train.LR <= 0 {
		return fmt.Errorf("%w: train.lr must be positive, got %v", ErrConfigInvalid, c.Train.LR)
	}
	if c.Train.Optimizer != "adam" && c.Train.Optimizer != "sgd" {
		return fmt.Errorf("%w: train.optimizer must be adam or sgd, got %q", ErrConfigInvalid, c.Train.Optimizer)
	}
	if n := len(c.Train.LevelWeights); n != 0 && n != c.Model.PoolCount {
		return fmt.Errorf(
			"%w: train.levelWeights has %v entries, want one per prediction level (%v)",
			ErrConfigInvalid, n, c.Model.PoolCount,
		)
	}

	return nil
}

// ModelConfig converts the yaml model section to a dunet.Config.
func (c *Config) ModelConfig() dunet.Config {
	return dunet.Config{
		ImageChannels:   c.Model.ImageChannels,
		PolyMapChannels: c.Model.PolyMapChannels,
		ImageBase:       c.Model.ImageBase,
		PolyMapBase:     c.Model.PolyMapBase,
		CommonBase:      c.Model.CommonBase,
		PoolCount:       c.Model.PoolCount,
		DispChannels:    c.Model.DispChannels,
		AddSeg:          c.Model.AddSeg,
		SegChannels:     c.Model.SegChannels,
	}
}

// DatasetConfig builds the sample synthesis settings for the tile set,
// with augmentation switched per split.
func (c *Config) DatasetConfig(augment bool) data.DatasetConfig {
	return data.DatasetConfig{
		Dir:      c.Data.Dir,
		MaxDisp:  c.Data.MaxDisp,
		GridStep: c.Data.GridStep,
		Augment:  augment,
		Seed:     c.Data.Seed,
	}
}

// Device maps the configured device name onto a gotch device.
func (c *Config) Device() gotch.Device {
	if c.Train.Device == "cuda" {
		return gotch.NewCuda().CudaIfAvailable()
	}

	return gotch.CPU
}

// LevelWeights returns the per-level loss weights, defaulting to uniform
// weighting when the config leaves them out.
func (c *Config) LevelWeights() []float64 {
	if len(c.Train.LevelWeights) > 0 {
		return c.Train.LevelWeights
	}

	w := make([]float64, c.Model.PoolCount)
	for i := range w {
		w[i] = 1
	}

	return w
}
