// Package inbox turns a watched directory into a conversion queue.
//
// HEIC and HEIF files that appear in the directory, or are written to, are
// enqueued once their events have been quiet for the debounce interval,
// so a file still being copied is not read half-written. Files present at
// start are enqueued as well. Hidden files and subdirectories are ignored.
package inbox
