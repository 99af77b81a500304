package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/spf13/cobra"

	"github.com/reelcap/recorder/internal/audio"
	"github.com/reelcap/recorder/internal/config"
	"github.com/reelcap/recorder/internal/encoder"
	"github.com/reelcap/recorder/internal/logging"
	"github.com/reelcap/recorder/internal/recorder"
	"github.com/reelcap/recorder/internal/window"
)

var (
	version = "0.1.0"
	cfgFile string

	flagOutput  string
	flagQuality string
	flagFPS     int
	flagWindow  string
	flagNoWait  bool
	flagMeta    []string
)

var rootCmd = &cobra.Command{
	Use:   "reelcap",
	Short: "Reelcap game session recorder",
	Long:  `Reelcap records a game window to an H.264/AAC MP4 with system and microphone audio.`,
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the target window until interrupted",
	Run: func(cmd *cobra.Command, args []string) {
		runRecord()
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio capture devices",
	Run: func(cmd *cobra.Command, args []string) {
		listDevices()
	},
}

var windowsCmd = &cobra.Command{
	Use:   "windows",
	Short: "List visible top-level windows",
	Run: func(cmd *cobra.Command, args []string) {
		listWindows()
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check recording prerequisites",
	Run: func(cmd *cobra.Command, args []string) {
		runProbe()
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file with the defaults",
	Run: func(cmd *cobra.Command, args []string) {
		writeConfig()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("reelcap v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is the OS config dir)")

	recordCmd.Flags().StringVar(&flagOutput, "output", "", "output folder override")
	recordCmd.Flags().StringVar(&flagQuality, "quality", "", "video quality: low, medium or high")
	recordCmd.Flags().IntVar(&flagFPS, "fps", 0, "target frames per second")
	recordCmd.Flags().StringVar(&flagWindow, "window", "", "window title pattern override")
	recordCmd.Flags().BoolVar(&flagNoWait, "no-wait", false, "fail instead of waiting when the window is absent")
	recordCmd.Flags().StringArrayVar(&flagMeta, "meta", nil, "session metadata for the filename, key=value (repeatable)")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(windowsCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// setupLogging installs the final log handler: stderr, plus a size-rotated
// file when configured.
func setupLogging(cfg *config.Config) {
	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Log file unavailable: %v\n", err)
		} else {
			out = logging.TeeWriter(os.Stderr, rw)
		}
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, out)
}

func runRecord() {
	cfg := loadConfig()
	if flagOutput != "" {
		cfg.OutputFolder = flagOutput
	}
	if flagQuality != "" {
		cfg.VideoQuality = flagQuality
	}
	if flagFPS != 0 {
		cfg.TargetFPS = flagFPS
	}
	if flagWindow != "" {
		cfg.WindowTitlePattern = flagWindow
	}
	cfg.Validate()
	setupLogging(cfg)

	if cfg.WindowTitlePattern == "" {
		fmt.Fprintln(os.Stderr, "No window title pattern. Use --window or set window_title_pattern.")
		os.Exit(1)
	}

	orch := recorder.New(cfg)
	if !orch.IsAvailable() {
		fmt.Fprintln(os.Stderr, "Recording unavailable: missing encoder binary, output folder or disk space.")
		os.Exit(1)
	}

	metadata := parseMeta(flagMeta)
	if err := orch.StartCapture(metadata, !flagNoWait); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start capture: %v\n", err)
		os.Exit(1)
	}
	if orch.IsWaitingForWindow() {
		fmt.Printf("Waiting for window matching %q... (Ctrl-C to cancel)\n", cfg.WindowTitlePattern)
	} else {
		fmt.Printf("Recording %q to %s (Ctrl-C to stop)\n", cfg.WindowTitlePattern, orch.GetOutputPath())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	wasRunning := orch.IsRunning()
loop:
	for {
		select {
		case <-sigChan:
			fmt.Println("\nStopping...")
			break loop
		case <-ticker.C:
			running := orch.IsRunning()
			if running && !wasRunning {
				fmt.Printf("Recording to %s\n", orch.GetOutputPath())
			}
			if !running && !orch.IsWaitingForWindow() {
				// Session ended on its own: window closed, duration cap,
				// or start-after-wait failure.
				break loop
			}
			wasRunning = running
		}
	}

	path, err := orch.StopCapture()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Stop failed: %v\n", err)
		os.Exit(1)
	}
	if path == "" {
		path = orch.GetOutputPath()
	}
	if path != "" {
		fmt.Printf("Saved %s\n", path)
	} else {
		fmt.Println("No recording produced.")
	}
}

func writeConfig() {
	cfg := config.Default()
	if err := config.Save(cfg, cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Config written. Set window_title_pattern before recording.")
}

func parseMeta(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	meta := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			fmt.Fprintf(os.Stderr, "Ignoring malformed --meta %q (want key=value)\n", p)
			continue
		}
		meta[k] = v
	}
	return meta
}

func listDevices() {
	cfg := loadConfig()
	setupLogging(cfg)

	src := audio.NewCapturer(true, 1.0)
	devices, err := src.ListDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Device enumeration failed: %v\n", err)
		os.Exit(1)
	}
	if len(devices) == 0 {
		fmt.Println("No audio devices found.")
		return
	}
	for _, d := range devices {
		def := ""
		if d.IsDefault {
			def = " (default)"
		}
		fmt.Printf("%-12s %s%s\n", d.Kind, d.Name, def)
	}
}

func listWindows() {
	cfg := loadConfig()
	setupLogging(cfg)

	wins, err := window.NewLocator().List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Window enumeration failed: %v\n", err)
		os.Exit(1)
	}
	for _, w := range wins {
		fmt.Printf("%dx%-6d %s\n", w.Width, w.Height, w.Title)
	}
}

func runProbe() {
	cfg := loadConfig()
	setupLogging(cfg)

	ok := true

	if bin, err := encoder.Discover(cfg.EncoderPath); err == nil {
		fmt.Printf("encoder:  %s\n", bin)
	} else {
		fmt.Println("encoder:  NOT FOUND (install ffmpeg or set encoder_path)")
		ok = false
	}

	if err := os.MkdirAll(cfg.OutputFolder, 0o755); err != nil {
		fmt.Printf("output:   %s (NOT WRITABLE: %v)\n", cfg.OutputFolder, err)
		ok = false
	} else if usage, err := disk.Usage(cfg.OutputFolder); err == nil {
		fmt.Printf("output:   %s (%.1f GB free)\n",
			cfg.OutputFolder, float64(usage.Free)/(1<<30))
	} else {
		fmt.Printf("output:   %s\n", cfg.OutputFolder)
	}

	fmt.Printf("capture:  %s\n", captureBackend())

	src := audio.NewCapturer(cfg.CaptureMicrophone, cfg.MicVolume)
	if devices, err := src.ListDevices(); err == nil {
		loopback, mics := 0, 0
		for _, d := range devices {
			if d.Kind == audio.DeviceLoopback {
				loopback++
			} else {
				mics++
			}
		}
		fmt.Printf("audio:    %d playback, %d capture devices\n", loopback, mics)
	} else {
		fmt.Printf("audio:    unavailable (%v)\n", err)
	}

	if !ok {
		os.Exit(1)
	}
}
