package main

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"github.com/yiluheihei/pipeComp/dataset"
	"github.com/yiluheihei/pipeComp/dea"
	"github.com/yiluheihei/pipeComp/pipeline"
	"gopkg.in/yaml.v3"
)

// config is the experiment file.
type config struct {
	Alternatives  pipeline.Alternatives `yaml:"alternatives"`
	Thresholds    []float64             `yaml:"thresholds"`
	Threads       int                   `yaml:"threads"`
	SkipErrors    bool                  `yaml:"skip_errors"`
	SkipRedundant bool                  `yaml:"skip_redundant"`
	SVA           struct {
		Permutations int     `yaml:"permutations"`
		Significance float64 `yaml:"significance"`
		Seed         uint64  `yaml:"seed"`
	} `yaml:"sva"`
	Simulation struct {
		Genes           int     `yaml:"genes"`
		SamplesPerGroup int     `yaml:"samples_per_group"`
		PropDE          float64 `yaml:"prop_de"`
		LogFC           float64 `yaml:"logfc"`
		Dispersion      float64 `yaml:"dispersion"`
		HiddenEffect    float64 `yaml:"hidden_effect"`
		HiddenProp      float64 `yaml:"hidden_prop"`
		Seed            uint64  `yaml:"seed"`
	} `yaml:"simulation"`
}

func defaultConfig() config {
	var c config
	o := dea.DefaultOptions()
	c.Alternatives = dea.DefaultAlternatives()
	c.Thresholds = o.Thresholds
	c.Threads = 1
	c.SkipErrors = true
	c.SkipRedundant = true
	c.SVA.Permutations = o.SVA.Permutations
	c.SVA.Significance = o.SVA.Significance
	c.SVA.Seed = o.SVA.Seed

	s := dataset.DefaultSimOptions()
	c.Simulation.Genes = s.Genes
	c.Simulation.SamplesPerGroup = s.SamplesPerGroup
	c.Simulation.PropDE = s.PropDE
	c.Simulation.LogFC = s.LogFC
	c.Simulation.Dispersion = s.Dispersion
	c.Simulation.HiddenEffect = s.HiddenEffect
	c.Simulation.HiddenProp = s.HiddenProp
	c.Simulation.Seed = s.Seed
	return c
}

// loadConfig reads an experiment file. Fields missing from the file keep their defaults.
func loadConfig(path string) (config, error) {
	c := defaultConfig()
	if len(path) == 0 {
		return c, nil
	}
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return c, errors.Wrapf(err, "could not read %s", path)
	}
	// Alternatives given in the file replace the default grid rather than being merged into it.
	c.Alternatives = nil
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, errors.Wrapf(err, "could not parse %s", path)
	}
	if c.Alternatives == nil {
		c.Alternatives = dea.DefaultAlternatives()
	}
	if err := c.deaOptions().Validate(); err != nil {
		return c, errors.Wrapf(err, "invalid configuration %s", path)
	}
	return c, nil
}

func (c config) deaOptions() dea.Options {
	return dea.Options{
		SVA: dea.SVAOptions{
			Permutations: c.SVA.Permutations,
			Significance: c.SVA.Significance,
			Seed:         c.SVA.Seed,
		},
		Thresholds: c.Thresholds,
	}
}

func (c config) simOptions(name string, seed uint64) dataset.SimOptions {
	s := dataset.DefaultSimOptions()
	s.Name = name
	s.Genes = c.Simulation.Genes
	s.SamplesPerGroup = c.Simulation.SamplesPerGroup
	s.PropDE = c.Simulation.PropDE
	s.LogFC = c.Simulation.LogFC
	s.Dispersion = c.Simulation.Dispersion
	s.HiddenEffect = c.Simulation.HiddenEffect
	s.HiddenProp = c.Simulation.HiddenProp
	s.Seed = seed
	return s
}
