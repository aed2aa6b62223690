package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"
	FieldOrigin    = "origin"

	// Connection
	FieldClientID = "client_id"
	FieldRoom     = "room"
	FieldReason   = "reason"

	// Relay
	FieldEventType  = "event_type"
	FieldEventID    = "event_id"
	FieldRecipients = "recipients"
	FieldInstanceID = "instance_id"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
