// Command patchcore drives an Installer end to end against a JSON-backed
// index (see internal/jsonindex): verify a local root against an index,
// queue repair tasks for whatever is missing or corrupt, and install.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"

	"github.com/patchkit/corepatch/internal/core"
	"github.com/patchkit/corepatch/internal/jsonindex"
)

// VerifyCmd checks a local root against an index and reports what's
// missing or mismatched, without writing anything.
type VerifyCmd struct {
	Index       string `arg:"positional,required" help:"path to JSON index document"`
	Root        string `arg:"positional,required" help:"local root directory to verify"`
	Concurrency int    `arg:"--concurrency" help:"verification concurrency (default: core.DefaultVerifyConcurrency)"`
}

// InstallCmd runs a full verify-then-install cycle against a single HTTP
// source, covering every part the verify pass found missing.
type InstallCmd struct {
	Index          string `arg:"positional,required" help:"path to JSON index document"`
	Root           string `arg:"positional,required" help:"local root directory to install into"`
	SourceURL      string `arg:"positional,required" help:"base URL serving the source patch bytes via HTTP range requests"`
	SourceIndex    int    `arg:"--source-index" help:"source patch index to install from"`
	UniqueID       string `arg:"--unique-id" help:"value sent as the X-Patch-Unique-Id request header"`
	Split          int    `arg:"--split" help:"number of HTTP install tasks to split missing parts across (default: core.DefaultInstallSplit)"`
	VerifyConc     int    `arg:"--verify-concurrency"`
	InstallConc    int    `arg:"--install-concurrency"`
	MetricsAddr    string `arg:"--metrics-addr" help:"if set, serve Prometheus metrics on this address (e.g. :9090) for the duration of the install"`
}

type rootArgs struct {
	Config  string      `arg:"--config" help:"path to a JSON config file supplying defaults (default: patchcore.json in the working directory)"`
	Verify  *VerifyCmd  `arg:"subcommand:verify" help:"verify a local root against an index"`
	Install *InstallCmd `arg:"subcommand:install" help:"verify, repair, and install against an index"`
}

func main() {
	var args rootArgs
	args.Config = "patchcore.json"
	arg.MustParse(&args)

	cfg, err := loadConfig(args.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config %s: %v\n", args.Config, err)
		os.Exit(1)
	}
	applyConfigDefaults(&args, cfg)

	core.LogHandler = func(sender interface{}, entry core.LogEntry) {
		if entry.Level != core.Debug || bool(cfg.Debug) {
			fmt.Fprintf(os.Stderr, "[%v] %s\n", entry.Level, entry.Message)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	switch {
	case args.Verify != nil:
		err = runVerify(ctx, args.Verify)
	case args.Install != nil:
		err = runInstall(ctx, args.Install)
	default:
		fmt.Fprintln(os.Stderr, "no command specified")
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runVerify(ctx context.Context, cmd *VerifyCmd) error {
	idx, err := jsonindex.Load(cmd.Index)
	if err != nil {
		return err
	}

	callbacks := &core.Callbacks{
		OnCorruptionFound: func(part core.Part, result core.VerifyResult) {
			core.PushLogInfo(nil, fmt.Sprintf("target %d part %d: %v", part.TargetIndex(), part.PartIndex(), result))
		},
	}
	in := core.NewInstaller(idx, cmd.Root, callbacks)
	defer in.Close()

	if err := in.VerifyFiles(ctx, cmd.Concurrency); err != nil {
		return err
	}

	for i := 0; i < idx.TargetCount(); i++ {
		missing := in.Ledger().MissingPartsForTarget(i)
		if len(missing) > 0 {
			fmt.Printf("target %d (%s): %d missing part(s)\n", i, idx.Target(i).Path(), len(missing))
		}
	}
	for _, t := range in.Ledger().SizeMismatchTargets() {
		fmt.Printf("target %d (%s): size mismatch\n", t, idx.Target(t).Path())
	}
	return nil
}

func runInstall(ctx context.Context, cmd *InstallCmd) error {
	idx, err := jsonindex.Load(cmd.Index)
	if err != nil {
		return err
	}

	stopMetrics := maybeServeMetrics(cmd.MetricsAddr)
	defer stopMetrics()

	callbacks := &core.Callbacks{
		OnInstallProgress: func(sourceIndex int, bytesDone, bytesTotal int64) {
			fmt.Printf("\rinstalling from source %d: %d/%d bytes", sourceIndex, bytesDone, bytesTotal)
			installBytesDone.Set(float64(bytesDone))
			installBytesTotal.Set(float64(bytesTotal))
		},
		OnCorruptionFound: func(part core.Part, result core.VerifyResult) {
			core.PushLogInfo(nil, fmt.Sprintf("target %d part %d: %v", part.TargetIndex(), part.PartIndex(), result))
		},
	}

	in := core.NewInstaller(idx, cmd.Root, callbacks)
	defer in.Close()

	if err := in.VerifyFiles(ctx, cmd.VerifyConc); err != nil {
		return err
	}
	if err := in.PrepareForInstall(); err != nil {
		return err
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	in.Scheduler().QueueHTTPInstallSplit(client, cmd.SourceIndex, cmd.SourceURL, cmd.UniqueID, cmd.Split)

	if err := in.Install(ctx, cmd.InstallConc); err != nil {
		return err
	}
	fmt.Println()

	return in.WriteVersionFiles()
}
