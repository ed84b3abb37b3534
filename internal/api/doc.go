// Package api contains the HTTP handlers for the catalog ingestion
// API: catalog uploads, job status and outcome listings, bulk deletes,
// and webhook config management. Handlers translate between HTTP and
// the service layer; they hold no business logic of their own.
package api
