package types

// Connection is a directed edge between two steps of a workflow.
type Connection struct {
	ConnectionID                string `json:"connectionId,omitempty"`
	WorkflowID                  string `json:"workflowId"`
	FromStepID                  string `json:"fromStepId,omitempty"` // Empty for the edge entering an initial step
	ToStepID                    string `json:"toStepId"`
	IsConditionGroupDefaultStep bool   `json:"isConditionGroupDefaultStep,omitempty"`
}

// EdgeKey identifies a connection by its endpoints.
type EdgeKey struct {
	From string
	To   string
}

// Key returns the (from, to) pair of the connection.
func (c Connection) Key() EdgeKey {
	return EdgeKey{From: c.FromStepID, To: c.ToStepID}
}

// Updates is the data record a workflow reads from and writes to.
type Updates map[string]interface{}

// Clone returns a deep copy of u. Nested maps and slices are copied so that
// a branch can never observe writes made by a sibling branch.
func (u Updates) Clone() Updates {
	out := make(Updates, len(u))
	for k, v := range u {
		out[k] = cloneValue(v)
	}
	return out
}

// Merge copies every key of other into u, overwriting existing keys.
func (u Updates) Merge(other Updates) {
	for k, v := range other {
		u[k] = v
	}
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case Updates:
		return val.Clone()
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

// Result is the outcome of one execution pass.
type Result struct {
	Updates       Updates      `json:"updates"`
	PendingTimers []*TimerStep `json:"pendingTimers"`
}

// PendingTimerIDs returns the step ids of the pending timers, in order.
func (r *Result) PendingTimerIDs() []string {
	ids := make([]string, 0, len(r.PendingTimers))
	for _, t := range r.PendingTimers {
		ids = append(ids, t.WorkflowStepID)
	}
	return ids
}
