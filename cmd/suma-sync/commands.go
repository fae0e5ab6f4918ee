package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/breeze-rmm/suma-sync/internal/audit"
	"github.com/breeze-rmm/suma-sync/internal/logging"
	"github.com/breeze-rmm/suma-sync/internal/publish"
	"github.com/breeze-rmm/suma-sync/internal/suma"
)

// requestFlags are the flags that select one operation target.
type requestFlags struct {
	from      string
	to        string
	kind      string
	lppSource string
}

func (f *requestFlags) register(cmd *cobra.Command, defaultKind string) {
	cmd.Flags().StringVar(&f.from, "from", "", "source level, e.g. 7100-03")
	cmd.Flags().StringVar(&f.to, "to", "", "destination level, e.g. 7100-03-05-1524")
	cmd.Flags().StringVar(&f.kind, "type", defaultKind, "request type: TL, SP or Latest")
	cmd.Flags().StringVar(&f.lppSource, "lpp-source", "", "lpp-source name (default PAA_<type>_<from>[_<to>])")
	_ = cmd.MarkFlagRequired("from")
}

func (f *requestFlags) session() (*suma.Session, error) {
	kind, err := suma.ParseKind(f.kind)
	if err != nil {
		return nil, err
	}
	req, err := suma.NewRequest(suma.RequestOptions{
		Root:      rt.cfg.RootDir,
		FromLevel: f.from,
		ToLevel:   f.to,
		Kind:      kind,
		LppSource: f.lppSource,
	}, nil)
	if err != nil {
		return nil, err
	}
	return suma.NewSession(req, sessionOptions()...), nil
}

func sessionOptions() []suma.SessionOption {
	opts := []suma.SessionOption{
		suma.WithToolPath(rt.cfg.SumaPath),
		suma.WithProgress(os.Stderr, time.Duration(rt.cfg.ProgressIntervalSeconds)*time.Second),
		suma.WithRecorder(journalOrNil()),
	}
	return opts
}

func metadataCmd() *cobra.Command {
	var flags requestFlags
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Fetch the metadata of a level",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.session()
			if err != nil {
				return err
			}
			result, err := s.Metadata(cmd.Context())
			if err != nil {
				return err
			}
			if !result.OK {
				fmt.Printf("%s: metadata not available (%s)\n", s.Request().FromLevel(), result.Reason)
				return nil
			}
			fmt.Printf("%s: metadata in %s\n", s.Request().FromLevel(), s.Request().MetadataDir())
			return nil
		},
	}
	flags.register(cmd, string(suma.KindLatest))
	return cmd
}

func previewCmd() *cobra.Command {
	var flags requestFlags
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show what a download would fetch",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.session()
			if err != nil {
				return err
			}
			result, err := s.Preview(cmd.Context())
			if err != nil {
				return err
			}
			printCounters("preview", result.Counters)
			fmt.Printf("missing: %t\n", result.Missing)
			return nil
		},
	}
	flags.register(cmd, string(suma.KindSP))
	return cmd
}

func downloadCmd() *cobra.Command {
	var (
		flags     requestFlags
		doPublish bool
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download fixes into the lpp-source directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.session()
			if err != nil {
				return err
			}
			result, err := s.Download(cmd.Context(), nil)
			if err != nil {
				return err
			}
			printDownload(result)
			if doPublish {
				return publishLppSource(cmd.Context(), s.Request())
			}
			return nil
		},
	}
	flags.register(cmd, string(suma.KindSP))
	cmd.Flags().BoolVar(&doPublish, "publish", false, "publish the lpp-source after a successful download")
	return cmd
}

func syncCmd() *cobra.Command {
	var (
		flags     requestFlags
		doPublish bool
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Preview, then download if anything is missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.session()
			if err != nil {
				return err
			}
			result, err := suma.Sync(cmd.Context(), s, suma.SyncOptions{MinFreeDiskGiB: rt.cfg.MinFreeDiskGB})
			if err != nil {
				return err
			}
			printCounters("preview", result.Preview.Counters)
			if !result.Downloaded {
				fmt.Println("nothing to download")
				return nil
			}
			printDownload(result.Download)
			if doPublish {
				return publishLppSource(cmd.Context(), s.Request())
			}
			return nil
		},
	}
	flags.register(cmd, string(suma.KindSP))
	cmd.Flags().BoolVar(&doPublish, "publish", false, "publish the lpp-source after a successful download")
	return cmd
}

func spPerTLCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "sp-per-tl",
		Short: "List the service packs of every technical level",
		RunE: func(cmd *cobra.Command, args []string) error {
			miner := suma.NewMiner(suma.MinerConfig{
				Root:           rt.cfg.RootDir,
				Families:       rt.cfg.Families,
				MaxFailures:    rt.cfg.MaxFailures,
				Concurrency:    rt.cfg.MiningConcurrency,
				Cache:          suma.NewYAMLCache(rt.cfg.CacheFile),
				SessionOptions: sessionOptions(),
				Journal:        journalOrNil(),
			})
			spPerTL, err := miner.SpPerTL(cmd.Context(), refresh)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(spPerTL)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore the cache and mine the metadata again")
	return cmd
}

func publishCmd() *cobra.Command {
	var flags requestFlags
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload an lpp-source to the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.session()
			if err != nil {
				return err
			}
			return publishLppSource(cmd.Context(), s.Request())
		},
	}
	flags.register(cmd, string(suma.KindSP))
	return cmd
}

func journalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the operation journal",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify [path]",
		Short: "Check the hash chain of the journal and its rotated copies",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rt.cfg.AuditFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("no journal: set audit_file in the config or pass a path")
			}
			n, err := audit.VerifyChain(path)
			if err != nil {
				return fmt.Errorf("journal %s is broken after %d entries: %w", path, n, err)
			}
			fmt.Printf("journal %s: %d entries verified\n", path, n)
			return nil
		},
	})
	return cmd
}

func publishLppSource(ctx context.Context, req *suma.RequestConfig) error {
	provider, err := publish.New(ctx, rt.cfg.Publish)
	if errors.Is(err, publish.ErrNotConfigured) {
		return fmt.Errorf("%w: set publish.provider in the config", err)
	}
	if err != nil {
		return err
	}
	defer provider.Close()

	logging.FromContext(ctx).Info("publishing", "provider", provider.Name(), "lppSource", req.PackageSourceName())
	publisher := publish.NewPublisher(provider, rt.cfg.Publish.Prefix, rt.cfg.Publish.Concurrency, journalOrNil())
	result, err := publisher.Publish(ctx, req)
	fmt.Printf("published %d files (%s) to %s\n", result.Files, humanize.IBytes(uint64(result.Bytes)), provider.Name())
	return err
}

// journalOrNil keeps a nil *audit.Logger from becoming a non-nil Recorder.
func journalOrNil() suma.Recorder {
	if rt.journal == nil {
		return nil
	}
	return rt.journal
}

func printCounters(label string, c suma.Counters) {
	fmt.Printf("%s: %d downloaded (%.2f GiB, %s), %d failed, %d skipped\n",
		label, c.Downloaded, c.GiB, humanize.IBytes(c.Bytes()), c.Failed, c.Skipped)
}

func printDownload(r suma.DownloadResult) {
	printCounters("download", r.Counters)
	fmt.Printf("results: %d succeeded, %d failed, %d skipped\n", r.Succeeded, r.Failed, r.Skipped)
}
