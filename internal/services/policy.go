package services

import (
	"github.com/yukikurage/task-tracker-api/internal/metrics"
	"github.com/yukikurage/task-tracker-api/internal/models"
	"github.com/yukikurage/task-tracker-api/internal/policy"
)

// enforce turns a policy decision into an error and counts denials.
func enforce(action policy.Action, d policy.Decision) error {
	if d.Allowed {
		return nil
	}
	metrics.PolicyDenialsTotal.WithLabelValues(string(action), string(d.Reason)).Inc()
	return d.Err(action)
}

func authorize(action policy.Action, actor *models.User, resource *policy.Resource) error {
	return enforce(action, policy.Authorize(action, policy.SubjectOf(actor), resource))
}

// conflict reports a uniqueness violation caught by the store after the
// policy checks already passed (concurrent writers).
func conflict(action policy.Action, reason policy.Reason) error {
	return enforce(action, policy.Decision{Kind: policy.KindConflict, Reason: reason})
}
