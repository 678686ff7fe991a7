// Package results holds converted outputs for download.
//
// Every successful conversion is published once: it gets a revocable
// object URL (blob:<uuid>) served by the API, and an entry in the batch
// archive under its output name. Both are withdrawn together when the
// item is re-processed or the batch is reset.
package results
