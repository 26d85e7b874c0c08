// Package services holds the error classification sentinels and context
// helpers shared by the pipeline stages and external service clients.
//
// Errors produced by stage code are tagged with one of the sentinel markers so
// failure handling can distinguish configuration problems from transient
// provider outages without string matching. The context helpers let clients
// and loggers carry deck, job, and stage identity across call boundaries.
package services
