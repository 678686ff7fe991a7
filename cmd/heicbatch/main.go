package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"heic-to-jpg/internal/batch"
	"heic-to-jpg/internal/codec"
	"heic-to-jpg/internal/filesystem"
	"heic-to-jpg/internal/logging"
	"heic-to-jpg/internal/results"
	"heic-to-jpg/internal/worker"

	"golang.org/x/term"
)

const progressInterval = 200 * time.Millisecond

// options are the parsed command line.
type options struct {
	outDir       string
	quality      float64
	keepMetadata bool
	zipPath      string
	verbose      bool
	inputs       []string
}

// deps is what a run needs from the outside world.
type deps struct {
	decoder codec.Decoder
	encoder codec.Encoder
	init    func() error
	stdout  io.Writer
	stderr  io.Writer
	// progress enables the live status line.
	progress bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	rt := deps{
		decoder:  codec.NewVipsDecoder(),
		encoder:  codec.NewJPEGEncoder(),
		init:     codec.InitVips,
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		progress: term.IsTerminal(int(os.Stdout.Fd())),
	}
	code := run(ctx, opts, rt)
	codec.ShutdownVips()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	flags := flag.NewFlagSet("heicbatch", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&opts.outDir, "out", ".", "directory converted files are written to")
	flags.Float64Var(&opts.quality, "quality", worker.DefaultQuality, "JPEG quality from 0.0 to 1.0")
	flags.BoolVar(&opts.keepMetadata, "keep-metadata", true, "carry Exif metadata over to the JPEG")
	flags.StringVar(&opts.zipPath, "zip", "", "also write every converted file into this ZIP archive")
	flags.BoolVar(&opts.verbose, "v", false, "verbose logging")
	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: heicbatch [flags] <file|dir>...\n\n")
		fmt.Fprintf(stderr, "Converts HEIC/HEIF files to JPEG. Directories are searched recursively.\n\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		return opts, err
	}
	opts.inputs = flags.Args()
	if len(opts.inputs) == 0 {
		flags.Usage()
		return opts, errors.New("no inputs given")
	}
	return opts, nil
}

// collectSources expands directories into the HEIC-like files below them.
// Explicit file arguments are passed through so that AddFiles can report
// them as skipped.
func collectSources(inputs []string) ([]batch.Source, error) {
	var sources []batch.Source
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			src, err := batch.NewFileSource(in)
			if err != nil {
				return nil, err
			}
			sources = append(sources, src)
			continue
		}

		err = filepath.WalkDir(in, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !batch.IsHEICLike(d.Name(), "") {
				return nil
			}
			src, err := batch.NewFileSource(path)
			if err != nil {
				return err
			}
			sources = append(sources, src)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return sources, nil
}

func run(ctx context.Context, opts options, rt deps) int {
	if opts.verbose {
		logging.SetLevel(logging.LevelDebug)
	} else {
		logging.SetLevel(logging.LevelWarn)
	}

	sources, err := collectSources(opts.inputs)
	if err != nil {
		fmt.Fprintf(rt.stderr, "Error: %v\n", err)
		return 1
	}

	saver, err := results.NewDirSaver(opts.outDir)
	if err != nil {
		fmt.Fprintf(rt.stderr, "Error: %v\n", err)
		return 1
	}

	ctrl := batch.New(batch.Options{
		Converter: &worker.Converter{Decoder: rt.decoder, Encoder: rt.encoder},
		Encoder:   rt.encoder,
		Defaults:  worker.Settings{Quality: opts.quality, KeepMetadata: opts.keepMetadata},
		Init:      rt.init,
	})
	defer ctrl.Close()

	var saveErrs int
	ctrl.OnItemDone = func(it batch.Item, data []byte) {
		if err := saver.Save(data, it.OutputName); err != nil {
			saveErrs++
			fmt.Fprintf(rt.stderr, "Error: save %s: %v\n", it.OutputName, err)
			return
		}
		if opts.verbose {
			fmt.Fprintf(rt.stdout, "%s -> %s (%s)\n", it.SourceName, it.OutputName, batch.FormatBytes(it.BytesOut))
		}
	}

	added := ctrl.AddFiles(sources...)
	fmt.Fprintln(rt.stdout, added.Message)
	if len(added.Added) == 0 {
		return 1
	}

	done := make(chan struct{})
	if rt.progress {
		go showProgress(ctrl, rt.stdout, done)
	}
	err = ctrl.ProcessQueue(ctx)
	close(done)
	if rt.progress {
		fmt.Fprint(rt.stdout, "\r\033[K")
	}
	if err != nil {
		fmt.Fprintf(rt.stderr, "Error: %v\n", err)
		return 1
	}

	for _, it := range ctrl.Items() {
		if it.Status == batch.StatusError {
			fmt.Fprintf(rt.stderr, "Failed: %s: %s\n", it.SourceName, it.Error)
		}
	}
	fmt.Fprintln(rt.stdout, ctrl.StatusText())

	stats := ctrl.Stats()
	if opts.zipPath != "" && stats.Success > 0 {
		data, err := ctrl.Archive()
		if err == nil {
			err = filesystem.WriteFileAtomic(opts.zipPath, data, 0o644, filesystem.DefaultRetryConfig())
		}
		if err != nil {
			fmt.Fprintf(rt.stderr, "Error: write %s: %v\n", opts.zipPath, err)
			return 1
		}
		fmt.Fprintf(rt.stdout, "Wrote %s (%s)\n", opts.zipPath, batch.FormatBytes(int64(len(data))))
	}

	if stats.Failed > 0 || saveErrs > 0 {
		return 1
	}
	return 0
}

func showProgress(ctrl *batch.Controller, w io.Writer, done <-chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			fmt.Fprintf(w, "\r\033[K%s", ctrl.StatusText())
		}
	}
}
