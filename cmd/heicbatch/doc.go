// Command heicbatch converts HEIC/HEIF files to JPEG from the command line.
//
// Usage:
//
//	heicbatch [flags] <file|dir>...
//
// Directories are searched recursively for .heic and .heif files. Outputs
// get unique names in the -out directory, and -zip additionally writes all
// of them into one archive. A status line is shown while converting when
// stdout is a terminal.
//
// The exit code is 1 if any file failed to convert or be saved.
package main
