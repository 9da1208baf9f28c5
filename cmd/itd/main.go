package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	httpadmin "github.com/hausd/itd/internal/api/http"
	"github.com/hausd/itd/internal/config"
	"github.com/hausd/itd/internal/daemon"
	"github.com/hausd/itd/internal/engine"
)

// itdDetachEnv is set on the re-exec'd child so it knows not to detach
// again (spec §6's -d flag forks once, not recursively).
const itdDetachEnv = "ITD_DETACHED=1"

func main() {
	os.Exit(run())
}

func run() int {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	log := zap.Must(logConfig.Build())
	defer log.Sync()
	log = log.Named("main")

	cfg, err := config.ParseDaemon(os.Args[1:])
	if err != nil {
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp {
			return 0
		}
		log.Error("usage error", zap.Error(err))
		return 1
	}

	if cfg.Detach && os.Getenv("ITD_DETACHED") == "" {
		if err := detach(os.Args[1:]); err != nil {
			log.Error("detach failed", zap.Error(err))
			return 1
		}
		return 0
	}

	if err := os.MkdirAll(cfg.Home, 0o755); err != nil {
		log.Error("create database home failed", zap.Error(err), zap.String("dir", cfg.Home))
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// cfg.File (-f FILE) selects which persisted database this daemon
	// instance uses; it is the Redis namespace prefix here, the same way it
	// names a file under cfg.Home in spec's original on-disk layout. Two
	// daemons started with different -f values must never share state.
	namespace := cfg.File
	eng, err := engine.NewEngine(ctx, cfg.RedisAddr, cfg.RedisDB, namespace, log)
	if err != nil {
		log.Error("engine init failed", zap.Error(err))
		return 2
	}
	defer eng.Close()

	d := daemon.New(eng, cfg.Socket, log)

	admin := httpadmin.New(eng, cfg.RedisAddr, cfg.RedisDB, log)
	go func() {
		if err := admin.ListenAndServe(cfg.HTTPAddr); err != nil {
			log.Warn("admin http server stopped", zap.Error(err))
		}
	}()

	if err := d.RunUntilSignal(); err != nil {
		log.Error("daemon exited with error", zap.Error(err))
		return 4
	}

	log.Info("clean shutdown")
	return 0
}

// detach re-execs itself in a new session so the daemon survives the
// launching shell's exit, matching this pack's approach to supervised
// child processes (setpgid isolation, here via Setsid for full session
// detachment instead) — grounded on the teacher's processmgr package,
// which applies SysProcAttr{Setpgid, Pdeathsig} to isolate a child's
// lifecycle from its parent.
func detach(argv []string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("detach: resolve executable: %w", err)
	}

	args := make([]string, 0, len(argv))
	for _, a := range argv {
		if a == "-d" || a == "--detach" {
			continue
		}
		args = append(args, a)
	}

	cmd := exec.Command(exe, args...)
	cmd.Env = append(os.Environ(), itdDetachEnv)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	return cmd.Start()
}
