package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/ardnew/softhcd/pkg"
	"github.com/ardnew/softhcd/pkg/prof"
	"github.com/ardnew/softhcd/scenario"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusErr  = "ERROR"
)

// errFailed reports that at least one scenario failed its expectations.
var errFailed = errors.New("scenario expectations failed")

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		parallel   int
		verbose    bool
		cpuProfile string
		memProfile string
	)
	cmd := &cobra.Command{
		Use:   "run <script.yaml|glob>...",
		Short: "Run scenario scripts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expand(args)
			if err != nil {
				return err
			}
			scripts := make([]*scenario.Script, 0, len(paths))
			for _, p := range paths {
				s, err := scenario.Load(p)
				if err != nil {
					return err
				}
				scripts = append(scripts, s)
			}
			pkg.LogInfo(pkg.ComponentCLI, "running scenarios", "count", len(scripts), "parallel", parallel)

			session, err := prof.Start(cpuProfile, memProfile)
			if err != nil {
				return err
			}
			results, runErr := scenario.RunAll(cmd.Context(), scripts, parallel)
			if err := session.Stop(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			rows := lo.Map(results, func(r scenario.Result, _ int) []string {
				status := statusPass
				switch {
				case r.Err != nil:
					status = statusErr
				case !r.Passed():
					status = statusFail
				}
				return []string{r.Name, r.Profile, strconv.Itoa(r.Steps), status, r.Duration.String()}
			})
			if err := render(out, styled(out, root.plain),
				[]string{"scenario", "profile", "steps", "status", "time"}, rows, 3); err != nil {
				return err
			}
			if verbose {
				for _, r := range results {
					if r.Err != nil {
						fmt.Fprintf(out, "%s: %v\n", r.Name, r.Err)
					}
					for _, f := range r.Failures {
						fmt.Fprintf(out, "%s: %s\n", r.Name, f)
					}
				}
			}

			passed, failed := scenario.Summary(results)
			fmt.Fprintf(out, "%d passed, %d failed\n", passed, failed)
			if runErr != nil {
				return runErr
			}
			if failed > 0 {
				return errFailed
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&parallel, "parallel", "j", 4, "scenarios to run at once (0 for no limit)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every failed expectation")
	cmd.Flags().StringVar(&cpuProfile, "cpuprofile", "", "write a CPU profile of the run to this file")
	cmd.Flags().StringVar(&memProfile, "memprofile", "", "write a heap profile after the run to this file")
	return cmd
}

// expand resolves each argument as a glob, keeping literal paths that match
// nothing so the loader reports them.
func expand(args []string) ([]string, error) {
	var paths []string
	for _, a := range args {
		if !strings.ContainsAny(a, "*?[") {
			paths = append(paths, a)
			continue
		}
		m, err := filepath.Glob(a)
		if err != nil {
			return nil, fmt.Errorf("%w: pattern %q: %w", pkg.ErrInvalidParameter, a, err)
		}
		if len(m) == 0 {
			return nil, fmt.Errorf("%w: pattern %q matches no files", pkg.ErrInvalidParameter, a)
		}
		paths = append(paths, m...)
	}
	return lo.Uniq(paths), nil
}
