package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/germanamz/playfield/pkg/bridge"
	"github.com/germanamz/playfield/pkg/engine"
)

const shutdownTimeout = 5 * time.Second

type serveOptions struct {
	addr    string
	origins []string
}

// newServeCommand creates "playfield serve", which runs the engine behind the
// websocket bridge until interrupted.
func newServeCommand(opts *Options) *cobra.Command {
	var o serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the machine and expose its events over a websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return serve(ctx, cfg, o)
		},
	}

	cmd.Flags().StringVar(&o.addr, "addr", "127.0.0.1:5050", "Listen address")
	cmd.Flags().StringSliceVar(&o.origins, "origin", nil, "Allowed cross-origin host patterns")

	return cmd
}

// serve runs the HTTP server until ctx is done.
func serve(ctx context.Context, cfg engine.Config, o serveOptions) error {
	log := LoggerFromContext(ctx)

	eng, err := engine.New(cfg, engine.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	mux := http.NewServeMux()
	mux.Handle("/ws", bridge.New(eng, bridge.WithLogger(log), bridge.WithOriginPatterns(o.origins...)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	ln, err := net.Listen("tcp", o.addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	eng.Post(eventResetComplete, nil)
	log.Info("serving", "addr", ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
