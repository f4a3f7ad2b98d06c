// Package api exposes the engine over HTTP: search, ingestion
// notifications, reindex control, consistency checks, health and
// Prometheus metrics.
//
//	GET  /api/v1/search
//	POST /api/v1/index/changed
//	POST /api/v1/index/deleted
//	POST /api/v1/index/purge
//	POST /api/v1/index/reindex
//	GET  /api/v1/index/reindex
//	GET  /api/v1/index/consistency
//	GET  /api/v1/index/audit
//	GET  /api/v1/stats
//	GET  /health
//	GET  /metrics
package api
