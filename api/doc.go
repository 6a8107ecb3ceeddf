// Package api defines the wire types of the AgentRelay HTTP API.
//
// # API Overview
//
// AgentRelay exposes a small RESTful API over the session engine:
//   - POST /v1/runs runs one session to a terminal state
//   - GET /v1/runs/stream streams per-turn snapshots over a websocket
//   - /v1/threads lists, loads and deletes persisted sessions
//   - /v1/agents and /v1/graph describe the compiled agent graph
//   - /health, /ready and /version report service status
//
// # Authentication
//
// When jwt.enabled is set, /v1 endpoints require a bearer token:
//
//	Authorization: Bearer <token>
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// Prometheus metrics are served separately on :9091/metrics.
package api
