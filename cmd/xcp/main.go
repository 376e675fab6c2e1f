// Command xcp is the CLI entrypoint: it parses flags, builds an Engine, and
// runs either single-file or tree-copy mode. Ignore-pattern matching,
// argument validation beyond what cobra gives for free, and progress-bar
// rendering choices live here as the "external collaborators" the core
// engine package never imports directly.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/thediveo/enumflag/v2"

	"github.com/xcpkit/xcp/internal/config"
	"github.com/xcpkit/xcp/internal/engine"
	"github.com/xcpkit/xcp/internal/ignore"
	"github.com/xcpkit/xcp/internal/progresssink"
	"github.com/xcpkit/xcp/internal/status"
	"github.com/xcpkit/xcp/internal/statusapi"
	"github.com/xcpkit/xcp/internal/walker"
	"github.com/xcpkit/xcp/internal/xlog"
)

type reflinkOpt enumflag.Flag

const (
	reflinkAuto reflinkOpt = iota
	reflinkAlways
	reflinkNever
)

var reflinkOptIds = map[reflinkOpt][]string{
	reflinkAuto:   {"auto"},
	reflinkAlways: {"always"},
	reflinkNever:  {"never"},
}

func (r reflinkOpt) toPolicy() config.ReflinkPolicy {
	switch r {
	case reflinkAlways:
		return config.ReflinkAlways
	case reflinkNever:
		return config.ReflinkNever
	default:
		return config.ReflinkAuto
	}
}

var (
	debug        bool
	noClobber    bool
	noProgress   bool
	fsync        bool
	preserveMode bool
	preserveTime bool
	preserveOwn  bool
	workers      int
	blockSizeStr string
	queueLen     int
	reflink      reflinkOpt = reflinkAuto
	ignoreFile   string
	statusAddr   string
)

var rootCmd = &cobra.Command{
	Use:   "xcp SOURCE... DEST",
	Short: "Parallel, reflink- and sparse-file-aware POSIX tree copier",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		xlog.Setup(debug)
		logger := xlog.With(log.Fields{"component": "cli"})

		blockSize, err := parseSize(blockSizeStr)
		if err != nil {
			return fmt.Errorf("invalid --block-size %q: %w", blockSizeStr, err)
		}

		var preserve config.Preserve
		if preserveMode {
			preserve |= config.PreserveMode
		}
		if preserveTime {
			preserve |= config.PreserveTimestamps
		}
		if preserveOwn {
			preserve |= config.PreserveOwnership
		}

		opts := config.New(blockSize, workers, queueLen, noClobber, reflink.toPolicy(), preserve, fsync)

		var sink progresssink.Sink = progresssink.Silent{}
		if !noProgress {
			sink = progresssink.NewBar("xcp", 0)
		}

		eng, err := engine.New(opts, sink)
		if err != nil {
			return err
		}

		sources := args[:len(args)-1]
		dest := args[len(args)-1]

		ctx := context.Background()

		if len(sources) == 1 {
			if fi, statErr := os.Stat(sources[0]); statErr == nil && !fi.IsDir() {
				return eng.CopySingle(ctx, sources[0], dest)
			}
		}

		matcher, err := ignore.Load(ignoreFile)
		if err != nil {
			return fmt.Errorf("loading ignore file: %w", err)
		}

		var stopStatus func()
		if statusAddr != "" {
			agg := status.New(sink)
			srv := statusapi.New(statusAddr, agg)
			errCh := srv.Start()
			go func() {
				if srvErr, ok := <-errCh; ok && srvErr != nil {
					logger.WithError(srvErr).Warn("status API server stopped unexpectedly")
				}
			}()
			stopStatus = func() { _ = srv.Shutdown(ctx) }
		}
		if stopStatus != nil {
			defer stopStatus()
		}

		skip := walker.SkipFunc(func(relPath string, isDir bool) bool {
			return matcher.ShouldSkip(relPath)
		})

		return eng.CopyTree(ctx, sources, dest, skip)
	},
}

// parseSize accepts plain byte counts or human-friendly suffixes (K, M, G;
// binary powers of two), e.g. "1M" == 1048576.
func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	mult := int64(1)
	suffix := s[len(s)-1]
	switch suffix {
	case 'k', 'K':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1 << 30
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	return n * mult, nil
}

func init() {
	flags := rootCmd.Flags()
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.BoolVar(&noClobber, "no-clobber", false, "Fail instead of overwriting existing destination paths")
	flags.BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	flags.BoolVar(&fsync, "fsync", false, "fsync each destination file before closing it")
	flags.BoolVar(&preserveMode, "preserve-mode", true, "Preserve source file permission bits")
	flags.BoolVar(&preserveTime, "preserve-timestamps", false, "Preserve source modification times")
	flags.BoolVar(&preserveOwn, "preserve-ownership", false, "Preserve source uid/gid (requires privilege)")
	flags.IntVar(&workers, "workers", 4, "Number of concurrent block-copy workers")
	flags.StringVar(&blockSizeStr, "block-size", "1M", "Block size for block-level copying (accepts K/M/G suffixes)")
	flags.IntVar(&queueLen, "queue-len", 0, "Submission queue bound (0 derives one from the open-file ulimit)")
	flags.Var(enumflag.New(&reflink, "reflink", reflinkOptIds, enumflag.EnumCaseInsensitive),
		"reflink", "Reflink/copy-on-write policy: always, auto, or never")
	flags.StringVar(&ignoreFile, "ignore-file", "", "Path to a gitignore-style pattern file")
	flags.StringVar(&statusAddr, "status-addr", "", "Serve /status, /metrics, and /swagger on this address (e.g. :8080)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("copy failed")
		os.Exit(1)
	}
}
