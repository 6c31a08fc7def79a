package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware/auth.go keys)
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Service
	FieldService    = "service"
	FieldInstanceID = "instance_id"
	FieldComponent  = "component"

	// Realtime
	FieldRoomID    = "room_id"
	FieldClientID  = "client_id"
	FieldEventType = "event_type"
	FieldItemType  = "item_type"
	FieldItemID    = "item_id"
	FieldAttempt   = "attempt"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
