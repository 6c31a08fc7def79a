package audit

import (
	"context"

	"github.com/weiawesome/wes-canvas-live/pkg/log"
)

// Audit actions for content-service.
const (
	ActionSaveDocument     = "document.save"
	ActionDocumentConflict = "document.conflict"
	ActionDeleteItem       = "item.delete"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldTarget = "target"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action, userID, target, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldTarget, target).
		Msg(msg)
}
