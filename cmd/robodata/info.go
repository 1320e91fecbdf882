package main

import (
	"context"
	"os"

	"github.com/gwillem/robodata/pkg/dataset"
	"github.com/gwillem/robodata/pkg/info"
	"github.com/gwillem/robodata/pkg/metrics"
	"github.com/gwillem/robodata/pkg/obsmodality"
)

type InfoCommand struct {
	Dataset     string `long:"dataset" required:"true" description:"Path or s3:// location of the hdf5 dataset"`
	FilterKey   string `long:"filter-key" description:"Only report episodes listed under this filter key"`
	Verbose     bool   `short:"v" long:"verbose" description:"List filter key contents and the layout of every episode"`
	Plot        string `long:"plot" description:"Write a trajectory length histogram to this image file"`
	Bins        int    `long:"bins" default:"20" description:"Histogram bins"`
	MetricsFile string `long:"metrics-file" description:"Write prometheus metrics to this textfile"`
}

func (c *InfoCommand) Execute(args []string) error {
	ctx := context.Background()
	logger := newLogger(c.Verbose)
	m := metrics.New()

	ds, err := dataset.Open(ctx, c.Dataset)
	if err != nil {
		return err
	}
	defer ds.Close()

	table := obsmodality.New(obsmodality.WithLogger(logger), obsmodality.WithMissCounter(m.ModalityMisses))
	r, err := info.Collect(ds, table, info.Options{FilterKey: c.FilterKey, Verbose: c.Verbose})
	if err != nil {
		return err
	}
	if err := r.Print(os.Stdout); err != nil {
		return err
	}

	if c.Plot != "" {
		if err := r.SaveHistogram(c.Plot, c.Bins); err != nil {
			logger.Warn("histogram not written", "err", err)
		} else {
			logger.Info("wrote histogram", "path", c.Plot)
		}
	}
	if c.MetricsFile != "" {
		if err := m.WriteFile(c.MetricsFile); err != nil {
			return err
		}
	}
	return r.Err()
}
