package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/songzhibin97/workflow-steps/storage"
	"github.com/songzhibin97/workflow-steps/types"
)

// repository maps steps and connections onto storage documents.
type repository struct {
	store storage.Storage
}

func workflowQuery(workflowID string) storage.Query {
	return storage.Query{"workflowId": workflowID}
}

func stepQuery(workflowID, stepID string) storage.Query {
	return storage.Query{"workflowId": workflowID, "workflowStepId": stepID}
}

func decodeStep(doc storage.Document) (types.Step, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal step document: %w", err)
	}
	return types.DecodeStep(data)
}

// steps loads the persisted steps of a workflow in insertion order.
func (r repository) steps(ctx context.Context, workflowID string) ([]types.Step, error) {
	docs, err := r.store.Find(ctx, storage.CollectionSteps, workflowQuery(workflowID))
	if err != nil {
		return nil, fmt.Errorf("failed to load steps: %w", err)
	}
	steps := make([]types.Step, 0, len(docs))
	for _, doc := range docs {
		step, err := decodeStep(doc)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// saveStep stores step under (workflowId, workflowStepId). An identical
// document is left alone and a changed one is swapped in place.
func (r repository) saveStep(ctx context.Context, step types.Step) error {
	doc, err := storage.Encode(step)
	if err != nil {
		return err
	}
	q := stepQuery(step.Base().WorkflowID, step.ID())

	existing, err := r.store.FindOne(ctx, storage.CollectionSteps, q)
	switch {
	case err == nil && !reflect.DeepEqual(existing, doc):
		if err := r.store.Replace(ctx, storage.CollectionSteps, q, []storage.Document{doc}); err != nil {
			return fmt.Errorf("failed to replace step %s: %w", step.ID(), err)
		}
		return nil
	case err == nil, errors.Is(err, storage.ErrNotFound):
		if _, err := r.store.Upsert(ctx, storage.CollectionSteps, doc); err != nil {
			return fmt.Errorf("failed to save step %s: %w", step.ID(), err)
		}
		return nil
	default:
		return fmt.Errorf("failed to look up step %s: %w", step.ID(), err)
	}
}

// deleteSteps removes the given steps of a workflow.
func (r repository) deleteSteps(ctx context.Context, workflowID string, stepIDs []string) error {
	for _, id := range stepIDs {
		if _, err := r.store.Delete(ctx, storage.CollectionSteps, stepQuery(workflowID, id)); err != nil {
			return fmt.Errorf("failed to delete step %s: %w", id, err)
		}
	}
	return nil
}

// connections loads the persisted connections of a workflow.
func (r repository) connections(ctx context.Context, workflowID string) ([]types.Connection, error) {
	docs, err := r.store.Find(ctx, storage.CollectionConnections, workflowQuery(workflowID))
	if err != nil {
		return nil, fmt.Errorf("failed to load connections: %w", err)
	}
	connections := make([]types.Connection, 0, len(docs))
	for _, doc := range docs {
		var c types.Connection
		if err := storage.Decode(doc, &c); err != nil {
			return nil, err
		}
		connections = append(connections, c)
	}
	return connections, nil
}

func encodeConnections(connections []types.Connection) ([]storage.Document, error) {
	docs := make([]storage.Document, 0, len(connections))
	for _, c := range connections {
		doc, err := storage.Encode(c)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
