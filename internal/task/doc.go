// Package task implements durable background job processing: a
// worker-pool runner over an in-memory queue backed by a persistent
// task ledger, plus the concrete catalog import and bulk delete tasks.
//
// Delivery is at-least-once. Every task is recorded before it is
// queued; on startup the runner requeues unfinished tasks, and a lease
// monitor reclaims tasks whose worker stopped making progress. Tasks
// compensate by being idempotent: the import task skips row ordinals
// already present in the outcome ledger, and the delete task resumes
// from the job's durable progress counter.
package task
