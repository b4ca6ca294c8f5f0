package metrics

import (
	"context"
	"iter"

	"github.com/roach88/mdstats/internal/ir"
)

// Summary is the aggregate over a set of project documents.
type Summary struct {
	ProjectsCount int64   `json:"projectsCount"`
	MDCount       int64   `json:"mdCount"`
	TotalTime     float64 `json:"totalTime"`
	TotalFrames   float64 `json:"totalFrames"`
	TotalFiles    int64   `json:"totalFiles"`
	TotalAnalyses int64   `json:"totalAnalyses"`
}

// IRObject returns the summary as a JSON value, for canonical encoding.
func (s Summary) IRObject() ir.IRObject {
	return ir.IRObject{
		"projectsCount": ir.IRInt(s.ProjectsCount),
		"mdCount":       ir.IRInt(s.MDCount),
		"totalTime":     ir.IRFloat(s.TotalTime),
		"totalFrames":   ir.IRFloat(s.TotalFrames),
		"totalFiles":    ir.IRInt(s.TotalFiles),
		"totalAnalyses": ir.IRInt(s.TotalAnalyses),
	}
}

// Accumulator folds projects into running totals. The zero value is ready
// to use. All contributions are sums, so accumulators over disjoint inputs
// can be combined with Merge in any order.
type Accumulator struct {
	s Summary
}

// Add folds one classified project into the totals.
func (a *Accumulator) Add(p Project) {
	a.s.ProjectsCount++

	switch proj := p.(type) {
	case LegacyProject:
		a.s.MDCount++
		a.s.TotalTime += proj.Length
		a.s.TotalFrames += proj.Snapshots
		a.s.TotalFiles += proj.Files
		a.s.TotalAnalyses += proj.Analyses

	case MultiRunProject:
		a.s.MDCount += int64(len(proj.Runs))
		var frames float64
		for _, run := range proj.Runs {
			frames += run.Frames
			a.s.TotalFiles += run.Files
			a.s.TotalAnalyses += run.Analyses
		}
		a.s.TotalFrames += frames
		a.s.TotalTime += proj.SimulatedTime()
	}
}

// SimulatedTime is the sum of frames * framestep over runs when the
// framestep is known. Without one it falls back to Length * number of runs.
// The fallback is an approximation: it is exact only when every run has the
// same length.
func (p MultiRunProject) SimulatedTime() float64 {
	if p.Framestep <= 0 {
		return p.Length * float64(len(p.Runs))
	}
	var total float64
	for _, run := range p.Runs {
		total += run.Frames * p.Framestep
	}
	return total
}

// AddDocument classifies doc and folds it in.
func (a *Accumulator) AddDocument(doc ir.IRObject) {
	a.Add(Classify(doc))
}

// Merge adds another accumulator's totals into a.
func (a *Accumulator) Merge(other Accumulator) {
	a.s.ProjectsCount += other.s.ProjectsCount
	a.s.MDCount += other.s.MDCount
	a.s.TotalTime += other.s.TotalTime
	a.s.TotalFrames += other.s.TotalFrames
	a.s.TotalFiles += other.s.TotalFiles
	a.s.TotalAnalyses += other.s.TotalAnalyses
}

// Summary returns the current totals.
func (a *Accumulator) Summary() Summary {
	return a.s
}

// Aggregate folds every document of docs in one forward pass. It stops at
// the first iteration error or when ctx is done; malformed documents never
// fail the aggregation.
func Aggregate(ctx context.Context, docs iter.Seq2[ir.IRObject, error]) (Summary, error) {
	var acc Accumulator
	for doc, err := range docs {
		if err != nil {
			return Summary{}, err
		}
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		acc.AddDocument(doc)
	}
	return acc.Summary(), nil
}
