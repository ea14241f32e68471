package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/songzhibin97/gkit/generator"

	"github.com/songzhibin97/workflow-steps/storage"
	"github.com/songzhibin97/workflow-steps/types"
)

// Reconciliation is the outcome of reconciling one workflow's connections.
type Reconciliation struct {
	// Connections are the records matching the derived edges, in derived order.
	Connections []types.Connection
	Created     int
	Reused      int
	// PrunedStepIDs lists the steps deleted because no connection references them.
	PrunedStepIDs []string
}

// Reconciler maps derived connections onto persisted connection records,
// keeping the id of every edge that already exists.
type Reconciler struct {
	repo     repository
	generate generator.Generator
	logger   *slog.Logger
}

// NewReconciler creates a reconciler writing to store and minting ids with generate.
func NewReconciler(store storage.Storage, generate generator.Generator, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{repo: repository{store: store}, generate: generate, logger: logger}
}

// Reconcile persists derived as the connections of workflowID. Existing
// records with the same (from, to) pair are reused; the others are created.
// With replaceAll the workflow's persisted connections become exactly the
// reconciled set, swapped in one storage operation, and the workflow's steps
// that no surviving connection references are deleted. Other workflows are
// never touched.
func (r *Reconciler) Reconcile(ctx context.Context, workflowID string, derived []types.Connection, replaceAll bool) (*Reconciliation, error) {
	existing, err := r.repo.connections(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	byEdge := make(map[types.EdgeKey]types.Connection, len(existing))
	for _, c := range existing {
		if _, ok := byEdge[c.Key()]; !ok {
			byEdge[c.Key()] = c
		}
	}

	result := &Reconciliation{Connections: make([]types.Connection, 0, len(derived))}
	for _, d := range derived {
		d.WorkflowID = workflowID
		c, err := r.reconcileOne(ctx, d, byEdge, replaceAll, result)
		if err != nil {
			return nil, err
		}
		byEdge[c.Key()] = c
		result.Connections = append(result.Connections, c)
	}

	if replaceAll {
		if err := r.replace(ctx, workflowID, result); err != nil {
			return nil, err
		}
	}

	r.logger.Debug("Reconciled workflow connections",
		"workflow_id", workflowID,
		"created", result.Created,
		"reused", result.Reused,
		"pruned", len(result.PrunedStepIDs),
		"replace_all", replaceAll)
	return result, nil
}

// reconcileOne returns the record for edge d. Without replaceAll, new and
// changed records are written immediately; otherwise replace writes them.
func (r *Reconciler) reconcileOne(ctx context.Context, d types.Connection, byEdge map[types.EdgeKey]types.Connection, replaceAll bool, result *Reconciliation) (types.Connection, error) {
	if c, ok := byEdge[d.Key()]; ok {
		result.Reused++
		if c.IsConditionGroupDefaultStep == d.IsConditionGroupDefaultStep {
			return c, nil
		}
		c.IsConditionGroupDefaultStep = d.IsConditionGroupDefaultStep
		if !replaceAll {
			_, err := r.repo.store.Update(ctx, storage.CollectionConnections,
				storage.Query{"workflowId": c.WorkflowID, "connectionId": c.ConnectionID},
				storage.Document{"isConditionGroupDefaultStep": c.IsConditionGroupDefaultStep})
			if err != nil {
				return types.Connection{}, fmt.Errorf("failed to update connection %s: %w", c.ConnectionID, err)
			}
		}
		return c, nil
	}

	id, err := r.generate.NextID()
	if err != nil {
		return types.Connection{}, fmt.Errorf("failed to generate ID: %w", err)
	}
	d.ConnectionID = strconv.FormatUint(id, 10)
	result.Created++
	if !replaceAll {
		doc, err := storage.Encode(d)
		if err != nil {
			return types.Connection{}, err
		}
		if _, err := r.repo.store.Create(ctx, storage.CollectionConnections, doc); err != nil {
			return types.Connection{}, fmt.Errorf("failed to create connection %s: %w", d.ConnectionID, err)
		}
	}
	return d, nil
}

// replace swaps the workflow's connections for result.Connections and prunes
// the steps left without a connection.
func (r *Reconciler) replace(ctx context.Context, workflowID string, result *Reconciliation) error {
	docs, err := encodeConnections(result.Connections)
	if err != nil {
		return err
	}
	if err := r.repo.store.Replace(ctx, storage.CollectionConnections, workflowQuery(workflowID), docs); err != nil {
		return fmt.Errorf("failed to replace connections: %w", err)
	}

	referenced := make(map[string]bool, 2*len(result.Connections))
	for _, c := range result.Connections {
		if c.FromStepID != "" {
			referenced[c.FromStepID] = true
		}
		referenced[c.ToStepID] = true
	}

	steps, err := r.repo.steps(ctx, workflowID)
	if err != nil {
		return err
	}
	for _, step := range steps {
		if !referenced[step.ID()] {
			result.PrunedStepIDs = append(result.PrunedStepIDs, step.ID())
		}
	}
	return r.repo.deleteSteps(ctx, workflowID, result.PrunedStepIDs)
}
