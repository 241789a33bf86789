package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/skobkin/testtarget/bus"
	"github.com/skobkin/testtarget/connector"
	"github.com/skobkin/testtarget/driver"
	"github.com/skobkin/testtarget/events"
	"github.com/skobkin/testtarget/internal/config"
	"github.com/skobkin/testtarget/internal/logging"
	"github.com/skobkin/testtarget/transcript"
)

const prompt = "cui> "

// set via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("run cui", "error", err)
		os.Exit(1)
	}
}

func run() error {
	hostname := flag.String("hostname", "", "hostname for the TCP connection")
	port := flag.Int("port", 0, "TCP port number for the TCP connection")
	crlf := flag.Bool("crlf", false, "use CR+LF as new line instead of LF")
	ignoreBlank := flag.Bool("ignore-blank", false, "do not send blank input lines")
	splitLines := flag.Bool("split-lines", false, "buffer received data line by line")
	connectorName := flag.String("connector", "", "connector type: tcp, serial or null")
	serialPort := flag.String("serial-port", "", "serial port device")
	serialBaud := flag.Int("serial-baud", 0, "serial baud rate")
	sinkName := flag.String("transcript", "", "transcript sink: console, file or sqlite")
	logPrefix := flag.String("log-prefix", "", "transcript file prefix")
	logLevel := flag.String("log-level", "", "diagnostic log level")
	configPath := flag.String("config", "cui.json", "configuration file path")
	watchEvents := flag.Bool("watch", false, "print status and match events")
	name := flag.String("name", "cui", "target name used in transcript tags")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("cui", version)

		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(&cfg, flagOverrides{
		hostname:    *hostname,
		port:        *port,
		crlf:        *crlf,
		ignoreBlank: *ignoreBlank,
		splitLines:  *splitLines,
		connector:   *connectorName,
		serialPort:  *serialPort,
		serialBaud:  *serialBaud,
		sink:        *sinkName,
		logPrefix:   *logPrefix,
		logLevel:    *logLevel,
	})
	cfg.FillMissingDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logMgr := logging.NewManager()
	if err := logMgr.Configure(cfg.Logging, cfg.Transcript.Prefix+".diag.log"); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() {
		if closeErr := logMgr.Close(); closeErr != nil {
			slog.Warn("close log manager", "error", closeErr)
		}
	}()
	logger := logMgr.Logger("cui")
	logger.Info("starting cui", "version", version, "connector", cfg.Connection.Connector)

	b := bus.New(logMgr.Logger("bus"))
	defer b.Close()

	sink, err := newTranscript(ctx, cfg.Transcript)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer func() {
		if closeErr := sink.Close(); closeErr != nil {
			logger.Warn("close transcript", "error", closeErr)
		}
	}()

	conn, err := newConnector(cfg.Connection)
	if err != nil {
		return err
	}

	target := driver.New(*name, conn, sink,
		driver.WithBus(b),
		driver.WithLogger(logMgr.Logger("driver")))
	target.SetSplitLines(cfg.Session.SplitLines)
	target.SetFlushBeforeWait(cfg.Session.FlushBeforeWait)

	if *watchEvents {
		watch(ctx, b, logger)
	}

	if err := target.Start(ctx); err != nil {
		return fmt.Errorf("start target: %w", err)
	}
	defer target.Stop()

	terminator := "\n"
	if cfg.Session.CRLF {
		terminator = "\r\n"
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		fmt.Print(prompt)
		select {
		case <-ctx.Done():
			fmt.Println()
			logger.Info("interrupted")

			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Println()

				return nil
			}
			if cfg.Session.IgnoreBlank && len(line) == 0 {
				continue
			}
			target.SendText(line + terminator)
		}
	}
}

type flagOverrides struct {
	hostname    string
	port        int
	crlf        bool
	ignoreBlank bool
	splitLines  bool
	connector   string
	serialPort  string
	serialBaud  int
	sink        string
	logPrefix   string
	logLevel    string
}

// applyFlags lays explicitly set command line values over the loaded config.
func applyFlags(cfg *config.AppConfig, f flagOverrides) {
	if v := strings.TrimSpace(f.hostname); v != "" {
		cfg.Connection.Host = v
	}
	if f.port != 0 {
		cfg.Connection.Port = f.port
	}
	if v := strings.TrimSpace(f.connector); v != "" {
		cfg.Connection.Connector = config.ConnectorType(v)
	}
	if v := strings.TrimSpace(f.serialPort); v != "" {
		cfg.Connection.SerialPort = v
	}
	if f.serialBaud != 0 {
		cfg.Connection.SerialBaud = f.serialBaud
	}
	if f.crlf {
		cfg.Session.CRLF = true
	}
	if f.ignoreBlank {
		cfg.Session.IgnoreBlank = true
	}
	if f.splitLines {
		cfg.Session.SplitLines = true
	}
	if v := strings.TrimSpace(f.sink); v != "" {
		cfg.Transcript.Sink = config.SinkType(v)
	}
	if v := strings.TrimSpace(f.logPrefix); v != "" {
		cfg.Transcript.Prefix = v
	}
	if v := strings.TrimSpace(f.logLevel); v != "" {
		cfg.Logging.Level = v
	}
}

func newConnector(cfg config.ConnectionConfig) (connector.Connector, error) {
	switch cfg.Connector {
	case config.ConnectorTCP:
		return connector.NewTCP(cfg.Host, cfg.Port), nil
	case config.ConnectorSerial:
		return connector.NewSerial(cfg.SerialPort, cfg.SerialBaud), nil
	case config.ConnectorNull:
		return connector.NewNull(), nil
	default:
		return nil, fmt.Errorf("unknown connector: %s", cfg.Connector)
	}
}

func newTranscript(ctx context.Context, cfg config.TranscriptConfig) (transcript.Logger, error) {
	switch cfg.Sink {
	case config.SinkConsole:
		return transcript.Console(), nil
	case config.SinkFile:
		return transcript.NewFile(cfg.Prefix, true)
	case config.SinkSQLite:
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create transcript dir: %w", err)
			}
		}
		store, err := transcript.NewSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}

		return transcript.Multi(transcript.Console(), store), nil
	default:
		return nil, fmt.Errorf("unknown transcript sink: %s", cfg.Sink)
	}
}

func watch(ctx context.Context, b bus.MessageBus, logger *slog.Logger) {
	statusSub := b.Subscribe(events.TopicStatus)
	matchSub := b.Subscribe(events.TopicMatch)

	go func() {
		for {
			select {
			case <-ctx.Done():
				b.Unsubscribe(statusSub, events.TopicStatus)
				b.Unsubscribe(matchSub, events.TopicMatch)

				return
			case raw := <-statusSub:
				if status, ok := raw.(events.Status); ok {
					logger.Info("status", "target", status.Target, "state", status.State, "error", status.Err)
				}
			case raw := <-matchSub:
				if match, ok := raw.(events.Match); ok {
					logger.Info("match", "target", match.Target, "pattern", match.Pattern, "unit", match.Unit)
				}
			}
		}
	}()
}
