// Package metrics computes summary statistics over project documents.
//
// Project documents come in two layouts. Legacy documents describe a single
// simulation with scalar metadata; multi-run documents carry an "mds" array
// with one entry per run. Classify decides the layout once per document and
// the Accumulator folds each variant with its own rules.
package metrics

import (
	"github.com/roach88/mdstats/internal/ir"
)

// Document field paths.
const (
	FieldRuns      = "mds"
	FieldLength    = "metadata.LENGTH"
	FieldSnapshots = "metadata.SNAPSHOTS"
	FieldFramestep = "metadata.FRAMESTEP"
	FieldFiles     = "files"
	FieldAnalyses  = "analyses"
	FieldFrames    = "frames"
)

// Project is a classified project document: LegacyProject or
// MultiRunProject. The interface is sealed.
type Project interface {
	project()
}

// LegacyProject is a single-run document.
type LegacyProject struct {
	Length    float64 // simulated time
	Snapshots float64 // frame count
	Files     int64
	Analyses  int64
}

func (LegacyProject) project() {}

// Run is one simulation of a multi-run project.
type Run struct {
	Frames   float64
	Files    int64
	Analyses int64
}

// MultiRunProject is a document with an "mds" array.
type MultiRunProject struct {
	Runs []Run
	// Framestep converts frames to simulated time. Zero means unknown.
	Framestep float64
	// Length is the project-level length, used only when Framestep is
	// unknown.
	Length float64
}

func (MultiRunProject) project() {}

// Classify reads doc into its layout variant. A document whose "mds" field
// is an array is multi-run; anything else, including "mds": null, is
// legacy. Classify never fails: unreadable numbers become zero.
func Classify(doc ir.IRObject) Project {
	if raw, ok := doc[FieldRuns]; ok {
		if runs, ok := ir.AsArray(raw); ok {
			return classifyMultiRun(doc, runs)
		}
	}
	return LegacyProject{
		Length:    number(doc, FieldLength),
		Snapshots: number(doc, FieldSnapshots),
		Files:     count(doc, FieldFiles),
		Analyses:  count(doc, FieldAnalyses),
	}
}

func classifyMultiRun(doc ir.IRObject, runs ir.IRArray) MultiRunProject {
	p := MultiRunProject{
		Runs:      make([]Run, 0, len(runs)),
		Framestep: number(doc, FieldFramestep),
		Length:    number(doc, FieldLength),
	}
	for _, raw := range runs {
		run, _ := raw.(ir.IRObject)
		p.Runs = append(p.Runs, Run{
			Frames:   number(run, FieldFrames),
			Files:    count(run, FieldFiles),
			Analyses: count(run, FieldAnalyses),
		})
	}
	return p
}

// number reads a non-negative finite number at path. Missing, null,
// non-numeric and negative values read as zero.
func number(obj ir.IRObject, path string) float64 {
	if obj == nil {
		return 0
	}
	v, ok := ir.Lookup(obj, path)
	if !ok {
		return 0
	}
	f, ok := ir.AsNumber(v)
	if !ok || f < 0 {
		return 0
	}
	return f
}

// count reads the length of the array at path, zero if it is not an array.
func count(obj ir.IRObject, path string) int64 {
	if obj == nil {
		return 0
	}
	v, ok := ir.Lookup(obj, path)
	if !ok {
		return 0
	}
	arr, ok := ir.AsArray(v)
	if !ok {
		return 0
	}
	return int64(len(arr))
}
