// Package main provides the interactive player entry point.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/ruohki/krelez/internal/app/metadata"
	"github.com/ruohki/krelez/internal/app/player"
	"github.com/ruohki/krelez/internal/app/presenter"
	"github.com/ruohki/krelez/internal/infra/audio"
	"github.com/ruohki/krelez/internal/infra/config"
	"github.com/ruohki/krelez/internal/infra/logger"
	"github.com/ruohki/krelez/internal/infra/store"
)

var (
	app        = kingpin.New("krelez-player", "krelez channel player")
	configPath = app.Flag("config", "Path to config file").Default("config/krelez.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: player.log)").Default("player.log").String()
	channel    = app.Arg("channel", "Channel name to play").Required().String()
	autoplay   = app.Flag("play", "Start playback immediately").Bool()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	kingpin.MustParse(app.Parse(os.Args[1:]))

	// The terminal belongs to the status display, so logs default to a file.
	loggerConfig := logger.Config{
		Output: *logfile,
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
		return
	}

	if err := run(cfg, *channel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		zlog.Error().Msgf("Player error: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, name string) error {
	ch, ok := cfg.Channel(name)
	if !ok {
		return fmt.Errorf("unknown channel: %s", name)
	}
	if ch.Upstream.StreamURL == "" {
		return fmt.Errorf("channel %s has no upstream stream URL", name)
	}

	source, err := metadata.NewSourceFromConfig(ch, cfg.Server.PublicURL)
	if err != nil {
		return fmt.Errorf("failed to create metadata source: %w", err)
	}

	output := audio.NewOutput(ch.Upstream.StreamURL)
	volumes := store.NewVolumeStore(cfg.Player.VolumeFile)

	ctrl := player.NewController(name, output, source, volumes, cfg.Player.HistorySize)
	defer ctrl.Close()

	if *autoplay {
		ctrl.Play()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	cmdCh := readCommands()
	refresh := time.NewTicker(time.Second)
	defer refresh.Stop()

	fmt.Printf("krelez player - channel %s\n", name)
	fmt.Println("Commands: play, pause, vol <0-100>, mute, quit")
	render(ctrl)

	for {
		select {
		case <-sigCh:
			fmt.Println()
			return nil
		case ev := <-ctrl.Events():
			if ev.Type == player.EventPlaybackRejected {
				fmt.Println("\nPlayback rejected, check the stream URL and try again")
			}
			render(ctrl)
		case <-refresh.C:
			if ctrl.Snapshot().Status == player.StatusPlaying {
				render(ctrl)
			}
		case cmd, open := <-cmdCh:
			if !open {
				return nil
			}
			if quit := execute(ctrl, cmd); quit {
				return nil
			}
			render(ctrl)
		}
	}
}

// readCommands feeds stdin lines into a channel. The channel closes on EOF.
func readCommands() <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				out <- line
			}
		}
	}()
	return out
}

// execute applies one command to the controller. Returns true to quit.
func execute(ctrl *player.Controller, cmd string) bool {
	fields := strings.Fields(cmd)
	switch fields[0] {
	case "play", "p":
		ctrl.Play()
	case "pause":
		ctrl.Pause()
	case "mute", "m":
		ctrl.ToggleMute()
	case "vol", "v":
		if len(fields) < 2 {
			fmt.Println("Usage: vol <0-100>")
			return false
		}
		pct, err := strconv.Atoi(fields[1])
		if err != nil {
			fmt.Println("Usage: vol <0-100>")
			return false
		}
		ctrl.SetVolume(float64(pct) / 100)
	case "quit", "q", "exit":
		return true
	default:
		fmt.Printf("Unknown command: %s\n", fields[0])
	}
	return false
}

// render paints one status line plus recent history.
func render(ctrl *player.Controller) {
	view := presenter.Render(ctrl.Snapshot(), presenter.DefaultLabelWidth)

	mute := ""
	if view.Muted {
		mute = " [muted]"
	}
	fmt.Printf("\r\033[K[%s] %s  %s  vol %d%%%s", view.Status, view.Elapsed, view.Label, int(view.Volume*100), mute)

	if len(view.History) > 0 {
		fmt.Printf("\n  previously: %s\n", strings.Join(view.History, "; "))
	}
}
