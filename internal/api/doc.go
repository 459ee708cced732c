// Package api exposes the HTTP interface for the crawl coordinator: job
// submission, steering, cancellation, and the per-job progress stream.
package api
