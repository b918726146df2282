// Command gosshc connects to an SSH server, completes the transport
// handshake, and opens an interactive shell against it.
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/zmap/zflags"
	"golang.org/x/net/proxy"

	"github.com/XuGuangnian/gossh/config"
	"github.com/XuGuangnian/gossh/lib/ssh"
	"github.com/XuGuangnian/gossh/lib/ssh/terminal"
	"github.com/XuGuangnian/gossh/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options are the command-line flags, parsed with zflags in the style
// of a go-flags Parser.
type Options struct {
	Config string `short:"c" long:"config" description:"Path to a YAML config file" required:"true"`
}

func main() {
	opts := &Options{}
	if _, err := zflags.Parse(opts); err != nil {
		os.Exit(1)
	}

	f, err := config.Load(opts.Config)
	if err != nil {
		log.Fatal(err)
	}

	level, err := log.ParseLevel(f.Log.Level)
	if err != nil {
		level = log.InfoLevel
	}
	logger := log.New()
	logger.SetLevel(level)
	if f.Log.Format == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	}

	sshConfig := f.SSHConfig()
	sshConfig.Logger = logger

	if f.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		sshConfig.Metrics = metrics.NewRecorder(reg)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			logger.WithField("address", f.Metrics.Address).Info("serving metrics")
			if err := http.ListenAndServe(f.Metrics.Address, mux); err != nil {
				logger.WithError(err).Error("metrics server exited")
			}
		}()
	}

	conn, err := dial(f)
	if err != nil {
		log.Fatal(err)
	}
	defer conn.Close()

	session, err := ssh.Connect(conn, sshConfig)
	if err != nil {
		log.Fatalf("handshake failed: %v", err)
	}

	pty := &ssh.PtyRequest{Term: f.Target.Term, Cols: 80, Rows: 24}
	if pty.Term == "" {
		pty.Term = "xterm-256color"
	}
	shell, err := session.OpenShell(pty)
	if err != nil {
		log.Fatalf("shell open failed: %v", err)
	}
	defer shell.Close()

	fd := int(os.Stdin.Fd())
	if oldState, err := terminal.MakeRaw(fd); err == nil {
		defer terminal.Restore(fd, oldState)
	} else {
		logger.WithError(err).Debug("stdin is not a terminal, skipping raw mode")
	}

	pumpShell(shell)
}

// dial opens the TCP connection to the target, optionally routed
// through a SOCKS5 jump proxy.
func dial(f *config.File) (net.Conn, error) {
	if f.Proxy.Address == "" {
		return net.Dial("tcp", f.Target.Address)
	}

	var auth *proxy.Auth
	if f.Proxy.Username != "" {
		auth = &proxy.Auth{User: f.Proxy.Username, Password: f.Proxy.Password}
	}
	dialer, err := proxy.SOCKS5("tcp", f.Proxy.Address, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("gosshc: socks5 dialer: %w", err)
	}
	return dialer.Dial("tcp", f.Target.Address)
}

// pumpShell copies stdin to the shell and the shell's output to stdout
// until either side closes. Session is not safe for concurrent use
// (spec.md §5: the core is single-threaded cooperative, not
// goroutine-per-direction), so the stdin and shell-output goroutines
// below share shellMu around every call that reaches the Channel —
// neither a Read nor a Write on the shell ever overlaps the other.
func pumpShell(shell *ssh.Shell) {
	var shellMu sync.Mutex

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 32*1024)
		for {
			shellMu.Lock()
			n, err := shell.Read(buf)
			shellMu.Unlock()
			if n > 0 {
				os.Stdout.Write(buf[:n])
			}
			if err != nil {
				close(done)
				return
			}
		}
	}()

	buf := make([]byte, 4096)
	for {
		select {
		case <-done:
			return
		default:
		}
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			shellMu.Lock()
			_, werr := shell.Write(buf[:n])
			shellMu.Unlock()
			if werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}
