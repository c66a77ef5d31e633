package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/routefs/routefs/internal/adapter"
	"github.com/routefs/routefs/internal/config"
	"github.com/routefs/routefs/pkg/errors"
)

const stopTimeout = 30 * time.Second

var mountCmd = &cobra.Command{
	Use:   "mount <source> [mount-point]",
	Short: "Mount a source",
	Long: `Mounts a source at the given mount point and serves it until
interrupted or unmounted.

The mount point may also come from the configuration file or
ROUTEFS_MOUNT_POINT.

Examples:
  routefs mount file:///srv/data /mnt/data
  routefs mount s3://my-bucket/reports /mnt/reports --read-only
  routefs mount -c routefs.yaml s3://my-bucket`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runMount,
}

var mountFlags struct {
	logLevel    string
	logFormat   string
	allowOther  bool
	debug       bool
	readOnly    bool
	metrics     bool
	metricsPort int
	encoding    string
}

func init() {
	rootCmd.AddCommand(mountCmd)
	f := mountCmd.Flags()
	f.StringVar(&mountFlags.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	f.StringVar(&mountFlags.logFormat, "log-format", "", "Log format (text or json)")
	f.BoolVar(&mountFlags.allowOther, "allow-other", false, "Let other users access the mount")
	f.BoolVar(&mountFlags.debug, "fuse-debug", false, "Log every kernel request")
	f.BoolVar(&mountFlags.readOnly, "read-only", false, "Do not register write handlers")
	f.BoolVar(&mountFlags.metrics, "metrics", false, "Serve Prometheus metrics")
	f.IntVar(&mountFlags.metricsPort, "metrics-port", 0, "Port of the metrics server")
	f.StringVar(&mountFlags.encoding, "encoding", "", "Text encoding of mirrored files (file sources only)")
}

// applyMountFlags copies the flags the user set over cfg
func applyMountFlags(cmd *cobra.Command, cfg *config.Configuration) {
	changed := cmd.Flags().Changed

	if changed("log-level") {
		cfg.Global.LogLevel = mountFlags.logLevel
	}
	if changed("log-format") {
		cfg.Global.LogFormat = mountFlags.logFormat
	}
	if changed("allow-other") {
		cfg.Mount.AllowOther = mountFlags.allowOther
	}
	if changed("fuse-debug") {
		cfg.Mount.Debug = mountFlags.debug
	}
	if changed("read-only") {
		cfg.Sources.Local.ReadOnly = mountFlags.readOnly
		cfg.Sources.S3.ReadOnly = mountFlags.readOnly
	}
	if changed("metrics") {
		cfg.Monitoring.Metrics.Enabled = mountFlags.metrics
	}
	if changed("metrics-port") {
		cfg.Monitoring.Metrics.Port = mountFlags.metricsPort
	}
	if changed("encoding") {
		cfg.Sources.Local.Encoding = mountFlags.encoding
	}
}

func runMount(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyMountFlags(cmd, cfg)

	source := args[0]
	mountPoint := cfg.Mount.MountPoint
	if len(args) == 2 {
		mountPoint = args[1]
	}
	if mountPoint == "" {
		return fmt.Errorf("mount point is required")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := adapter.New(ctx, source, mountPoint, cfg)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Mounted %s at %s\n", source, mountPoint)

	served := make(chan struct{})
	go func() {
		a.Wait()
		close(served)
	}()

	select {
	case <-ctx.Done():
	case <-served:
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	// an external unmount leaves nothing to detach
	if err := a.Stop(stopCtx); err != nil && !errors.HasCode(err, errors.ErrCodeNotInitialized) {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Unmounted %s\n", mountPoint)
	return nil
}
