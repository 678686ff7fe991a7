// Package worker runs HEIC to JPEG conversions in an isolated goroutine.
//
// Converter is the unit of work. It decodes the source, carries the Exif
// record over when asked, encodes, and splices. It always returns a
// Result, never an error value across its boundary: decode and encode
// failures are fatal to the item, metadata failures only drop the
// metadata.
//
// Worker is an actor that owns one goroutine and processes requests
// strictly in order. Client sits in front of it, matching responses to
// callers by request ID, starting the worker lazily, and recreating it
// after a reset or a crash:
//
//	client := worker.NewClient(&worker.Converter{
//	    Decoder: codec.NewVipsDecoder(),
//	    Encoder: codec.NewJPEGEncoder(),
//	})
//	res, err := client.Process(ctx, id, src, worker.DefaultSettings())
//
// A panic escaping a conversion is treated as a crash of the whole worker:
// every waiting caller receives ErrCrashed and the OnCrash hook fires once.
package worker
