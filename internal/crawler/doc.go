// Package crawler holds the shared entity types, store and unit contracts,
// and the error taxonomy for the two-step directory crawl pipeline.
//
// Discovery units expand a session's seed URLs into summary records plus
// follow-up links; detail units enrich each record from its own page. All
// coordination happens through the persistent stores and the task queue —
// there is no direct unit-to-unit communication.
package crawler
