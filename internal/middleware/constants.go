package middleware

// Common context keys
const (
	TenantContextKey       = "tenant"
	OriginalPathContextKey = "original_path"
	OutcomeContextKey      = "edge_outcome"
	RequestIDContextKey    = "request_id"
)

// Headers set by the edge on the forwarded request.
const (
	OriginalPathHeader = "X-Edge-Original-Path"
	RequestIDHeader    = "X-Request-ID"
)
