// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package document

import (
	"context"
	"errors"
	"runtime"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/loom/graph"
	"github.com/AleutianAI/loom/kernel"
	"github.com/AleutianAI/loom/patch"
	"github.com/AleutianAI/loom/pointer"
	"github.com/AleutianAI/loom/resource"
	"github.com/AleutianAI/loom/schema"
)

// Plan returns the execution plan from start (or for everything that
// needs executing when start is empty) without running it.
func (d *Document) Plan(ctx context.Context, start string, options graph.PlanOptions) (graph.Plan, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.graph == nil {
		return graph.Plan{}, ErrNotCompiled
	}
	var from []string
	if start != "" {
		from = []string{resource.Code(d.Path, start, "", "").ID()}
	}
	return d.graph.Plan(ctx, from, options)
}

// execute plans from the request's start node and runs the plan stage by
// stage. Steps within a stage run concurrently, bounded by a semaphore;
// between stages the graph's stale and failed counts are refreshed and
// the cancel channel is polled.
func (d *Document) execute(ctx context.Context, request executeRequest) error {
	ctx, span := tracer.Start(ctx, "document.execute")
	defer span.End()

	d.mu.RLock()
	g := d.graph
	d.mu.RUnlock()
	if g == nil {
		return ErrNotCompiled
	}

	options := request.options
	if options.MaxConcurrency <= 0 {
		options.MaxConcurrency = d.config.MaxConcurrency
	}
	if options.MaxConcurrency <= 0 {
		options.MaxConcurrency = runtime.NumCPU()
	}

	var start []string
	if request.start != "" {
		start = []string{resource.Code(d.Path, request.start, "", "").ID()}
	}
	plan, err := g.Plan(ctx, start, options)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(
		attribute.Int("plan.stages", len(plan.Stages)),
		attribute.Int("plan.steps", plan.StepCount()),
	)

	if err := d.setParameters(ctx, plan); err != nil {
		return err
	}

	// Drain a cancel left over from a previous run.
	select {
	case <-d.cancelCh:
	default:
	}

	sem := semaphore.NewWeighted(int64(options.MaxConcurrency))
	for _, stage := range plan.Stages {
		select {
		case <-d.cancelCh:
			d.logger.Info("execution cancelled")
			span.SetStatus(codes.Error, ErrCancelled.Error())
			return ErrCancelled
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		eg, egctx := errgroup.WithContext(ctx)
		for _, step := range stage.Steps {
			step := step
			eg.Go(func() error {
				if err := sem.Acquire(egctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)
				return d.executeStep(egctx, step)
			})
		}
		if err := eg.Wait(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		// Each executed step moved its execute digest; refresh the
		// dependency-derived staleness the next stage will see.
		d.mu.Lock()
		err := g.Update(ctx)
		d.mu.Unlock()
		if err != nil {
			return err
		}
	}

	d.publish("executed", plan.StepCount())
	return nil
}

// executeStep runs one code resource: snapshot the node's code, execute
// it in the kernel space, then patch outputs, errors and the execute
// digest back into the node.
func (d *Document) executeStep(ctx context.Context, step graph.Step) error {
	info := step.Info
	if info.Resource.Kind != resource.KindCode {
		return nil
	}
	nodeID := info.Resource.NodeID

	d.mu.RLock()
	hint := d.addresses[nodeID]
	_, node, err := pointer.Find(d.root, nodeID, hint)
	var language, text string
	if err == nil {
		switch n := node.(type) {
		case *schema.CodeChunk:
			language, text = n.ProgrammingLanguage, n.Text
		case *schema.CodeExpression:
			language, text = n.ProgrammingLanguage, n.Text
		}
	}
	d.mu.RUnlock()
	if err != nil {
		return err
	}

	outputs, codeErrors, err := d.kernels.Exec(ctx, language, text)
	if errors.Is(err, kernel.ErrUnsupportedLanguage) {
		// No kernel for the language is a property of this node, not a
		// failure of the whole plan.
		outputs = nil
		codeErrors = []*schema.CodeError{{ErrorType: "KernelError", ErrorMessage: err.Error()}}
		err = nil
	}
	if err != nil {
		metricExecutions.WithLabelValues("error").Inc()
		return err
	}

	failed := len(codeErrors) > 0
	info.DidExecute(failed)
	if failed {
		metricExecutions.WithLabelValues("failed").Inc()
	} else {
		metricExecutions.WithLabelValues("succeeded").Inc()
	}

	digest := ""
	if info.ExecuteDigest != nil {
		digest = info.ExecuteDigest.String()
	}

	d.mu.Lock()
	_, node, err = pointer.Find(d.root, nodeID, d.addresses[nodeID])
	if err != nil {
		d.mu.Unlock()
		return err
	}
	var p patch.Patch
	switch n := node.(type) {
	case *schema.CodeChunk:
		updated := *n
		updated.Outputs = outputs
		updated.Errors = codeErrors
		updated.ExecuteDigest = digest
		p = patch.DiffTarget(n.ID, n, &updated)
		_, err = patch.Apply(n, p)
	case *schema.CodeExpression:
		updated := *n
		updated.Output = nil
		if len(outputs) > 0 {
			updated.Output = outputs[len(outputs)-1]
		}
		updated.Errors = codeErrors
		updated.ExecuteDigest = digest
		p = patch.DiffTarget(n.ID, n, &updated)
		_, err = patch.Apply(n, p)
	}
	if err == nil {
		d.status = StatusUnwritten
	}
	d.mu.Unlock()
	if err != nil {
		return err
	}

	metricPatchesApplied.Inc()
	d.publish("patched", p.Value())
	return nil
}

// setParameters pushes every parameter's value (or default) into the
// kernel space before the plan runs, using the plan's first language as
// the preferred kernel.
func (d *Document) setParameters(ctx context.Context, plan graph.Plan) error {
	params := d.Params()
	if len(params) == 0 || plan.StepCount() == 0 {
		return nil
	}
	language := plan.Stages[0].Steps[0].Info.Resource.Language

	for _, param := range params {
		if param.Name == "" {
			continue
		}
		value := param.Value
		if value == nil {
			value = param.Default
		}
		if value == nil {
			continue
		}
		if err := d.kernels.Set(ctx, language, param.Name, value); err != nil {
			if errors.Is(err, kernel.ErrUnsupportedLanguage) {
				continue
			}
			return err
		}
	}
	return nil
}
