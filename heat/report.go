package heat

import (
	"context"
	"fmt"
	"io"

	"github.com/unixpickle/heatsim/grid"
	"github.com/unixpickle/heatsim/snapshot"
)

// A Result summarizes a finished run.
type Result struct {
	RunID string

	// Iterations is the number of executed iterations.
	Iterations int

	// Elapsed is the coordinator's clock reading in
	// seconds when the last iteration ended.
	Elapsed float64

	// Acquisition is the part of Elapsed spent handing out
	// the initial condition, and Processing the rest.
	Acquisition float64
	Processing  float64

	// Printing is the part of Processing the coordinator
	// spent in Reporter.Progress.
	Printing float64

	// Metric is the global change of the last iteration.
	Metric float64

	// VirtualTime is the simulated time the run took.
	VirtualTime float64

	// Snapshot is the last progress report, if any.
	Snapshot *snapshot.Snapshot

	// Final is the grid after the last iteration.
	Final *grid.Global
}

// A Reporter receives the coordinator's output.
type Reporter interface {
	Progress(ctx context.Context, s *snapshot.Snapshot) error
	Summary(ctx context.Context, r *Result) error
}

// ConsoleReporter prints one line per snapshot and a
// final summary with a breakdown of the elapsed time.
type ConsoleReporter struct {
	W io.Writer
}

func (c *ConsoleReporter) Progress(ctx context.Context, s *snapshot.Snapshot) error {
	_, err := fmt.Fprintf(c.W, "Iteration %d: %.18f\n", s.Iteration, s.Metric)
	return err
}

func (c *ConsoleReporter) Summary(ctx context.Context, r *Result) error {
	_, err := fmt.Fprintf(c.W, "The program took %.2f seconds in total and executed %d iterations.\n"+
		"\t- %.2f seconds on acquisition.\n"+
		"\t- %.2f seconds on processing.\n"+
		"\t\t- %.2f seconds were spent on printing.\n",
		r.Elapsed, r.Iterations, r.Acquisition, r.Processing, r.Printing)
	return err
}

// PPMReporter writes every snapshot as an image.
type PPMReporter struct {
	Writer *snapshot.PPMWriter
}

func (p *PPMReporter) Progress(ctx context.Context, s *snapshot.Snapshot) error {
	return p.Writer.Write(ctx, s)
}

func (p *PPMReporter) Summary(ctx context.Context, r *Result) error {
	return nil
}

// MultiReporter passes everything on to each Reporter in
// turn and stops at the first error.
type MultiReporter []Reporter

func (m MultiReporter) Progress(ctx context.Context, s *snapshot.Snapshot) error {
	for _, r := range m {
		if err := r.Progress(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiReporter) Summary(ctx context.Context, res *Result) error {
	for _, r := range m {
		if err := r.Summary(ctx, res); err != nil {
			return err
		}
	}
	return nil
}

// discardReporter drops all output.
type discardReporter struct{}

func (discardReporter) Progress(ctx context.Context, s *snapshot.Snapshot) error { return nil }
func (discardReporter) Summary(ctx context.Context, r *Result) error             { return nil }
