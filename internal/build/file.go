package build

import "github.com/schaermu/stylepipe/internal/sourcemap"

// File is a stylesheet moving through the pipeline
type File struct {
	Source   string         // absolute path of the source file
	Path     string         // output name relative to the output directory
	Contents []byte         // current contents
	Map      *sourcemap.Map // nil when source maps are disabled
}

// Result summarizes a styles run
type Result struct {
	// Outputs lists the files written, in write order.
	Outputs []string
	// Errors holds the non-fatal failures of the run.
	Errors []*Error
}

// Failed reports whether any source failed to compile
func (r *Result) Failed() bool {
	return len(r.Errors) > 0
}
