package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clinbench/recoeval/internal/config"
	"github.com/clinbench/recoeval/internal/models"
	"github.com/clinbench/recoeval/internal/orchestrator"
	"github.com/clinbench/recoeval/internal/reporting"
	"github.com/clinbench/recoeval/internal/validation"
)

func newRunCommand() *cobra.Command {
	var (
		specPath  string
		exportDir string
		junitPath string
		quiet     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an evaluation described by a run spec file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluation(cmd, specPath, exportDir, junitPath, quiet)
		},
	}

	cmd.Flags().StringVarP(&specPath, "spec", "s", "run.yaml", "Path to the run spec YAML file")
	cmd.Flags().StringVarP(&exportDir, "output", "o", "", "Override the export directory")
	cmd.Flags().StringVar(&junitPath, "junit", "", "Write a JUnit XML report to this path")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")

	return cmd
}

func runEvaluation(cmd *cobra.Command, specPath, exportDir, junitPath string, quiet bool) error {
	schemaErrs, err := validation.ValidateRunSpecFile(specPath)
	if err != nil {
		return err
	}
	if len(schemaErrs) > 0 {
		return fmt.Errorf("run spec %s is invalid:\n  %s", specPath, strings.Join(schemaErrs, "\n  "))
	}

	spec, err := config.Load(specPath)
	if err != nil {
		return err
	}
	if exportDir != "" {
		spec.Export.Dir = exportDir
		spec.Export.CSV = true
		spec.Export.Workbook = true
	}

	samples, err := orchestrator.LoadSamples(spec)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := orchestrator.New(nil)
	id := orch.Submit(spec, samples)

	reporter := newReporter(cmd.OutOrStdout(), quiet)
	reporter.start(spec.Name, len(spec.Services), len(samples))

	task, err := watchTask(ctx, orch, id, reporter)
	if err != nil {
		return err
	}

	switch task.Status {
	case models.TaskSuccess:
		reporter.printResult(task.Result)
		if junitPath != "" {
			if err := reporting.WriteJUnitXML(spec.Name, task.Result, junitPath); err != nil {
				return fmt.Errorf("writing JUnit report: %w", err)
			}
			reporter.println(fmt.Sprintf("junit: %s", junitPath))
		}
		if failures := countFailedServices(task.Result); failures > 0 {
			return &EvalFailureError{Message: fmt.Sprintf("%d of %d services failed", failures, task.Result.Summary.Tested)}
		}
		return nil
	default:
		return fmt.Errorf("evaluation failed: %s", task.Error)
	}
}

// taskPoller is the slice of the orchestrator watchTask needs.
type taskPoller interface {
	Poll(id string) (models.Task, error)
	Cancel(id string) error
}

// watchTask polls for progress until the task is terminal. On interrupt it
// requests cancellation and keeps polling so the final state is reported.
func watchTask(ctx context.Context, orch taskPoller, id string, reporter *reporter) (models.Task, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	interrupted := ctx.Done()
	for {
		select {
		case <-interrupted:
			// Stop selecting on the closed channel so the loop drops back
			// to the ticker cadence while the run winds down.
			interrupted = nil
			reporter.println("interrupt received, cancelling run")
			if err := orch.Cancel(id); err != nil {
				return models.Task{}, err
			}
		case <-ticker.C:
		}

		task, err := orch.Poll(id)
		if err != nil {
			return models.Task{}, err
		}
		reporter.progress(task)
		if task.Status.Terminal() {
			return task, nil
		}
	}
}

func countFailedServices(result *models.AggregateResult) int {
	if result == nil {
		return 0
	}
	return result.Summary.Failed
}
