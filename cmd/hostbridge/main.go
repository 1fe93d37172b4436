package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/guseggert/hostbridge/envelope"
	"github.com/guseggert/hostbridge/host"
	"github.com/guseggert/hostbridge/internal/appinfo"
	"github.com/guseggert/hostbridge/supervisor"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func heartbeatFailureExit() {
	fmt.Println("heartbeat failed, exiting")
	os.Exit(1)
}

func loadInfo(path string) (appinfo.Info, string, error) {
	if path != "" {
		info, err := appinfo.Load(path)
		return info, path, err
	}
	wd, err := os.Getwd()
	if err != nil {
		return appinfo.Info{}, "", err
	}
	info, err := appinfo.Find(wd)
	if errors.Is(err, appinfo.ErrNotFound) {
		info = appinfo.Default()
		info.Dir = wd
		return info, "", nil
	}
	if err != nil {
		return appinfo.Info{}, "", err
	}
	return info, filepath.Join(info.Dir, appinfo.FileName), nil
}

// selfCommand is how duplicate_process and open_window start another instance of this host.
// New instances pick their own port.
func selfCommand(infoPath, token, logLevel string) ([]string, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("finding own executable: %w", err)
	}
	argv := []string{exe, "serve", "--listen-addr", "127.0.0.1:0", "--log-level", logLevel}
	if infoPath != "" {
		argv = append(argv, "--info", infoPath)
	}
	if token != "" {
		argv = append(argv, "--token", token)
	}
	return argv, nil
}

func serve(cctx *cli.Context) error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cctx.String("log-level"))); err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	info, infoPath, err := loadInfo(cctx.String("info"))
	if err != nil {
		return fmt.Errorf("loading app info: %w", err)
	}

	var heartbeatFailureHandler func()
	switch onFailure := cctx.String("on-heartbeat-failure"); onFailure {
	case "exit":
		heartbeatFailureHandler = heartbeatFailureExit
	case "none":
		// nothing
	default:
		return fmt.Errorf("unsupported on-heartbeat-failure %q", onFailure)
	}

	self, err := selfCommand(infoPath, cctx.String("token"), cctx.String("log-level"))
	if err != nil {
		return err
	}

	opts := []host.Option{
		host.WithLogLevel(level),
		host.WithListenAddr(cctx.String("listen-addr")),
		host.WithAppInfo(info),
		host.WithToken(cctx.String("token")),
		host.WithHeartbeatTimeout(cctx.Duration("heartbeat-timeout")),
		host.WithHeartbeatFailureHandler(heartbeatFailureHandler),
		host.WithSupervisorOptions(supervisor.WithSelfCommand(self...)),
	}
	if page := cctx.String("page"); page != "" {
		opts = append(opts, host.WithPage(page))
	}
	if config := cctx.String("config"); config != "" {
		opts = append(opts, host.WithConfigPath(config))
	}
	logFile := cctx.String("log-file")
	if logFile == "" {
		logFile = info.LogPath()
	}
	if logFile != "" {
		opts = append(opts, host.WithLogFile(logFile, cctx.Bool("clear-log")))
	}

	h, err := host.New(opts...)
	if err != nil {
		return fmt.Errorf("building host: %w", err)
	}
	return h.Run()
}

// parseArg reads a command line argument as JSON, falling back to a plain string.
func parseArg(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func call(cctx *cli.Context) error {
	if cctx.NArg() < 1 {
		return fmt.Errorf("usage: %s call NAME [ARG...]", cctx.App.Name)
	}
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	client, err := host.NewClient(logger.Sugar(), cctx.String("addr"),
		host.WithClientToken(cctx.String("token")),
		host.WithClientWaitInterval(250*time.Millisecond),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cctx.Context, os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cctx.Duration("timeout"))
	defer cancel()

	if wait := cctx.Duration("wait"); wait > 0 {
		waitCtx, cancelWait := context.WithTimeout(ctx, wait)
		err := client.WaitForServer(waitCtx)
		cancelWait()
		if err != nil {
			return fmt.Errorf("waiting for host: %w", err)
		}
	}

	var args []any
	for _, a := range cctx.Args().Tail() {
		args = append(args, parseArg(a))
	}
	res, err := client.Call(ctx, cctx.Args().First(), args...)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(envelope.DecodeValue(res), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	fmt.Fprintln(cctx.App.Writer, string(b))
	return nil
}

func main() {
	tokenFlag := &cli.StringFlag{
		Name:    "token",
		Usage:   "Session token required from pages.",
		EnvVars: []string{"HOSTBRIDGE_TOKEN"},
	}
	app := &cli.App{
		Name:  "hostbridge",
		Usage: "the native host that pages call into",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the host",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen-addr",
						Usage: "The address for the HTTP server to listen on.",
						Value: "127.0.0.1:8080",
					},
					&cli.StringFlag{
						Name:  "info",
						Usage: "Path to the app manifest. Searched for upwards from the working directory when unset.",
					},
					tokenFlag,
					&cli.StringFlag{
						Name:  "log-level",
						Usage: "Minimum log level.",
						Value: "info",
					},
					&cli.StringFlag{
						Name:  "page",
						Usage: "Page to show instead of the app's starting page.",
					},
					&cli.StringFlag{
						Name:  "config",
						Usage: "Path of the page config file.",
					},
					&cli.StringFlag{
						Name:  "log-file",
						Usage: "Also write the log to this file. Defaults to the app manifest's log_file.",
					},
					&cli.BoolFlag{
						Name:  "clear-log",
						Usage: "Empty the log file on start instead of appending.",
					},
					&cli.StringFlag{
						Name:  "on-heartbeat-failure",
						Usage: "Action to take on a heartbeat failure. One of [exit,none].",
						Value: "none",
					},
					&cli.DurationFlag{
						Name:  "heartbeat-timeout",
						Usage: "Duration to wait for a heartbeat. Zero disables the check.",
					},
				},
				Action: serve,
			},
			{
				Name:      "call",
				Usage:     "run one bound call against a running host",
				ArgsUsage: "NAME [ARG...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Address of the host.",
						Value: "127.0.0.1:8080",
					},
					tokenFlag,
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait for the call.",
						Value: time.Minute,
					},
					&cli.DurationFlag{
						Name:  "wait",
						Usage: "How long to wait for the host to come up before calling. Zero calls right away.",
					},
				},
				Action: call,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
