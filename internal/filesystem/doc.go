// Package filesystem reads source photos and writes converted files on
// volumes that may be network mounts. Operations that fail with ESTALE
// (stale NFS file handle) are retried with capped exponential backoff;
// every other error is returned immediately.
package filesystem
