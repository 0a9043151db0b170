// SPDX-License-Identifier: AGPL-3.0-only
package model

import (
	"encoding/json"

	"github.com/nexroo-ai/anthropic-rooms-pkg/internal/logging"
)

// PersistAndLogRun saves a tool run to the store (best-effort) and debug-logs it.
func PersistAndLogRun(store RunStore, run *ToolRun, logger *logging.Logger) {
	if store != nil {
		if err := store.SaveRun(run); err != nil {
			logger.Warnf("Failed to persist run for tool %s: %v", run.ToolName, err)
		}
	}

	jsonData, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		logger.Warnf("Failed to marshal run for tool %s: %v", run.ToolName, err)
	} else {
		logger.Debugf("Tool %s run: %s", run.ToolName, string(jsonData))
	}
}
