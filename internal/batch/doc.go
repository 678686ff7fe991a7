// Package batch drives a queue of HEIC to JPEG conversions.
//
// A Controller owns the items of one batch and dispatches them to a single
// conversion worker, one at a time and in the order they became pending.
// Each item moves pending -> processing -> done or error. ApplyOverride
// puts a finished item back to pending with its own settings; nothing else
// moves an item backwards.
//
// Reset is the only cancellation: it bumps a generation counter, and any
// result that arrives for an older generation is dropped without touching
// an item. The worker is torn down and started again on the next
// dispatch.
//
//	ctrl := batch.New(batch.Options{
//	    Converter: &worker.Converter{Decoder: codec.NewVipsDecoder(), Encoder: codec.NewJPEGEncoder()},
//	    Gate:      monitor,
//	})
//	ctrl.AddFiles(batch.NewBytesSource("IMG_0001.HEIC", "image/heic", data))
//	ctrl.Kick()
package batch
