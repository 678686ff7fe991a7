// Package isobmff reads the box structure of ISO base media files (HEIF,
// HEIC, MP4 family) and resolves HEIF items to their stored bytes.
//
// The package never interprets pixel data. It offers two layers:
//
//   - ReadBox, FindBox and Walk parse box headers (32-bit size, 64-bit
//     extended size, size-to-end) and report box boundaries.
//   - LocateItem resolves an item type such as "Exif" through the meta
//     box's iinf and iloc tables and returns a copy of the item's bytes,
//     concatenating split extents in order.
//
// Every read is bounds-checked. Malformed input produces an error, never a
// panic, so callers can treat lookups as best-effort.
package isobmff
