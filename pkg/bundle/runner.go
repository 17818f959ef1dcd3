package bundle

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// RunOptions control how a plan is executed
type RunOptions struct {
	// Jobs limits how many targets compile at the same time. Values below 1 mean 1.
	Jobs int
	// DryRun only logs the declared outputs
	DryRun bool
	// Progress receives the progress bar, nil hides it
	Progress io.Writer
}

func newProgressBar(total int, w io.Writer) *progressbar.ProgressBar {
	if w == nil || os.Getenv("CI") == "true" {
		return progressbar.NewOptions(total, progressbar.OptionSetVisibility(false))
	}

	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("bundling"),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
	)
}

// Run compiles all targets of the plan. Targets are independent, so they run in no particular order;
// the first failure cancels the remaining targets and is returned.
func Run(ctx context.Context, plan *Plan, compiler *Compiler, opts RunOptions) ([]*CompileResult, error) {
	if opts.DryRun {
		for _, target := range plan.Targets {
			for _, out := range target.Outputs {
				log(ctx).Info().
					Str("task", target.Name).
					Msgf("%s -> %s (%s)", target.Input, out.File, out.Format)
			}
		}
		return []*CompileResult{}, nil
	}

	jobs := opts.Jobs
	if jobs < 1 {
		jobs = 1
	}

	bar := newProgressBar(len(plan.Targets), opts.Progress)
	defer bar.Finish()

	var lock sync.Mutex
	results := make([]*CompileResult, 0, len(plan.Targets))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(jobs)

	for _, target := range plan.Targets {
		target := target
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}

			result, err := compiler.Compile(groupCtx, target)
			if err != nil {
				return eris.Wrapf(err, "target %s failed", target.Name)
			}

			lock.Lock()
			results = append(results, result)
			lock.Unlock()

			log(ctx).Info().
				Str("task", target.Name).
				Msgf("wrote %d files", len(result.Files))
			bar.Add(1)
			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Target < results[j].Target
	})
	return results, nil
}
