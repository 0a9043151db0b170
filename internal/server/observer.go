// SPDX-License-Identifier: AGPL-3.0-only
package server

import (
	"encoding/json"
	"time"

	"github.com/nexroo-ai/anthropic-rooms-pkg/agent"
	"github.com/nexroo-ai/anthropic-rooms-pkg/internal/logging"
	"github.com/nexroo-ai/anthropic-rooms-pkg/model"
)

// NewStoreObserver returns an observer that persists tool execution events as
// run records.
func NewStoreObserver(store model.RunStore, logger *logging.Logger) agent.Observer {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return func(ev agent.Event) {
		run := &model.ToolRun{
			ToolName:     ev.ToolName,
			AddonID:      ev.AddonID,
			Input:        marshalLoose(ev.InputParameters),
			Output:       marshalLoose(ev.OutputData),
			Success:      ev.Success,
			Error:        ev.ErrorMessage,
			RetryAttempt: ev.RetryAttempt,
			MaxRetries:   ev.MaxRetries,
			ExecutionMS:  float64(ev.ExecutionTime) / float64(time.Millisecond),
			StartTime:    time.Now().Add(-ev.ExecutionTime),
		}
		model.PersistAndLogRun(store, run, logger.WithField("tool", ev.ToolName))
	}
}

func marshalLoose(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
