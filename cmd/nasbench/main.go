// Command nasbench queries a benchmark snapshot and prints JSON results.
//
//	nasbench [-config file] <command> [flags]
//
// Commands: resolve, best, info, cost, decode, reload, export.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"nasbench201/internal/app"
	"nasbench201/internal/archive"
	"nasbench201/internal/config"
	"nasbench201/internal/snapshot"
	"nasbench201/pkg/nasbench"
	"nasbench201/pkg/topology"
)

var exitFunc = os.Exit

// errUsage marks errors that should exit with status 2.
var errUsage = errors.New("usage")

type command struct {
	summary string
	// needsStore is false for commands that work on encodings alone.
	needsStore bool
	run        func(ctx context.Context, env *env, args []string) (any, error)
}

type env struct {
	app    *app.App
	stderr io.Writer
}

var commands = map[string]command{
	"resolve": {"map an architecture string or index to its benchmark index", true, runResolve},
	"best":    {"find the most accurate architecture under cost ceilings", true, runBest},
	"info":    {"summarize train/valid/test metrics of one architecture", true, runInfo},
	"cost":    {"print FLOPs, params, latency and timing of one architecture", true, runCost},
	"decode":  {"parse an architecture string", false, runDecode},
	"reload":  {"refresh one architecture from the archive", true, runReload},
	"export":  {"write the snapshot and optionally archive records", true, runExport},
}

func main() {
	exitFunc(cli(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("nasbench", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML config file")
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		usage(stderr)
		return 2
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", rest[0])
		usage(stderr)
		return 2
	}

	e := &env{stderr: stderr}
	if cmd.needsStore {
		cfg, err := config.Load(*configPath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
			return 1
		}
		a, err := app.Open(ctx, cfg, app.WithLogOutput(stderr))
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "open: %v\n", err)
			return 1
		}
		defer func() { _ = a.Close() }()
		e.app = a
	}

	out, err := cmd.run(ctx, e, rest[1:])
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", rest[0], err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		_, _ = fmt.Fprintf(stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: nasbench [-config file] <command> [flags]")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(w, "  %-8s %s\n", name, commands[name].summary)
	}
}

func newFlags(name string, e *env) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

func runResolve(_ context.Context, e *env, args []string) (any, error) {
	fs := newFlags("resolve", e)
	arch := fs.String("arch", "", "architecture string")
	index := fs.Int("index", -1, "architecture index")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	var ref nasbench.ArchRef
	switch {
	case *arch != "":
		if topo, err := topology.Decode(*arch); err == nil {
			ref = nasbench.CanonicalRef(topo)
		} else {
			ref = nasbench.StringRef(*arch)
		}
	case *index >= 0:
		ref = nasbench.IndexRef(*index)
	default:
		return nil, fmt.Errorf("%w: -arch or -index is required", errUsage)
	}
	idx := e.app.Store.ResolveIndex(ref)
	out := map[string]any{"index": idx}
	if idx >= 0 {
		out["arch"], _ = e.app.Store.Arch(idx)
	}
	return out, nil
}

func runBest(_ context.Context, e *env, args []string) (any, error) {
	fs := newFlags("best", e)
	dataset := fs.String("dataset", "", "dataset name")
	set := fs.String("set", "", "metric set (x-valid, x-test, ori-test)")
	maxFLOPs := fs.Float64("max-flops", -1, "FLOPs ceiling; negative disables it")
	maxParams := fs.Float64("max-params", -1, "params ceiling; negative disables it")
	regimeName := fs.String("regime", "full", "full or less")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	if *dataset == "" || *set == "" {
		return nil, fmt.Errorf("%w: -dataset and -set are required", errUsage)
	}
	regime, err := nasbench.ParseRegime(*regimeName)
	if err != nil {
		return nil, err
	}
	var c nasbench.Ceilings
	if *maxFLOPs >= 0 {
		c.FLOPs = maxFLOPs
	}
	if *maxParams >= 0 {
		c.Params = maxParams
	}
	idx, acc, err := e.app.Store.FindBest(*dataset, *set, c, regime)
	if err != nil {
		return nil, err
	}
	out := map[string]any{"index": idx, "accuracy": acc}
	if idx >= 0 {
		out["arch"], _ = e.app.Store.Arch(idx)
	}
	return out, nil
}

func runInfo(_ context.Context, e *env, args []string) (any, error) {
	fs := newFlags("info", e)
	index := fs.Int("index", -1, "architecture index")
	dataset := fs.String("dataset", "", "dataset name")
	epoch := fs.Int("epoch", -1, "zero-based epoch; negative means the last one")
	regimeName := fs.String("regime", "full", "full or less")
	seed := fs.Int("seed", -1, "read a single seed")
	average := fs.Bool("average", false, "average over seeds instead of sampling one")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	if *index < 0 || *dataset == "" {
		return nil, fmt.Errorf("%w: -index and -dataset are required", errUsage)
	}
	if *average && *seed >= 0 {
		return nil, fmt.Errorf("%w: -seed and -average are exclusive", errUsage)
	}
	regime, err := nasbench.ParseRegime(*regimeName)
	if err != nil {
		return nil, err
	}
	ep := nasbench.LastEpoch
	if *epoch >= 0 {
		ep = nasbench.AtEpoch(*epoch)
	}
	sel := nasbench.SelectRandom(nil)
	switch {
	case *average:
		sel = nasbench.SelectAverage()
	case *seed >= 0:
		sel = nasbench.SelectSeed(*seed)
	}
	return e.app.Store.MoreInfo(*index, *dataset, ep, regime, sel)
}

func runCost(_ context.Context, e *env, args []string) (any, error) {
	fs := newFlags("cost", e)
	index := fs.Int("index", -1, "architecture index")
	dataset := fs.String("dataset", "", "dataset name")
	regimeName := fs.String("regime", "full", "full or less")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	if *index < 0 || *dataset == "" {
		return nil, fmt.Errorf("%w: -index and -dataset are required", errUsage)
	}
	regime, err := nasbench.ParseRegime(*regimeName)
	if err != nil {
		return nil, err
	}
	return e.app.Store.CostInfo(*index, *dataset, regime)
}

func runDecode(_ context.Context, e *env, args []string) (any, error) {
	fs := newFlags("decode", e)
	arch := fs.String("arch", "", "architecture string")
	matrix := fs.Bool("matrix", false, "print the adjacency matrix")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	if *arch == "" {
		return nil, fmt.Errorf("%w: -arch is required", errUsage)
	}
	if *matrix {
		m, err := topology.DecodeMatrix(*arch)
		if err != nil {
			return nil, err
		}
		return map[string]any{"ops": topology.Ops(), "matrix": m}, nil
	}
	topo, err := topology.Decode(*arch)
	if err != nil {
		return nil, err
	}
	return map[string]any{"nodes": topo, "canonical": topo.String()}, nil
}

func runReload(ctx context.Context, e *env, args []string) (any, error) {
	fs := newFlags("reload", e)
	index := fs.Int("index", -1, "architecture index")
	persist := fs.Bool("persist", false, "save the refreshed snapshot back to the snapshot backend")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	if err := e.app.Reload(ctx, *index); err != nil {
		return nil, err
	}
	if *persist {
		if err := e.app.Persist(ctx); err != nil {
			return nil, err
		}
	}
	return map[string]any{"reloaded": *index, "persisted": *persist}, nil
}

func runExport(ctx context.Context, e *env, args []string) (any, error) {
	fs := newFlags("export", e)
	outPath := fs.String("out", "", "snapshot file to write (.gz compresses)")
	toArchive := fs.Bool("archive", false, "also write one archive record per evaluated architecture")
	overwrite := fs.Bool("overwrite", false, "replace existing archive records")
	workers := fs.Int("workers", 8, "concurrent archive writes")
	if err := parse(fs, args); err != nil {
		return nil, err
	}
	if *outPath == "" && !*toArchive {
		return nil, fmt.Errorf("%w: -out or -archive is required", errUsage)
	}
	out := map[string]any{}
	if *outPath != "" {
		if err := snapshot.SaveFile(*outPath, e.app.Store.Export()); err != nil {
			return nil, err
		}
		out["snapshot"] = *outPath
	}
	if *toArchive {
		n, err := archive.Export(ctx, e.app.Store, e.app.ArchiveWriter(*overwrite), *workers)
		if err != nil {
			return nil, err
		}
		out["records"] = n
	}
	return out, nil
}
