package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/abe-bb/sensor-telemetry/controlplane/challenges"
	"github.com/abe-bb/sensor-telemetry/controlplane/httpapi"
	"github.com/abe-bb/sensor-telemetry/ingestion"
	"github.com/abe-bb/sensor-telemetry/internal/defaults"
	"github.com/abe-bb/sensor-telemetry/observability/prom"
	"github.com/abe-bb/sensor-telemetry/registry"
	"github.com/abe-bb/sensor-telemetry/users"
)

const serverKeyBits = 2048

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the TCP ingestion server and the HTTP control plane",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("http-listen", defaults.HTTPListen, "Control-plane HTTP bind address")
	serveCmd.Flags().String("tcp-listen", defaults.TCPListen, "Sensor ingestion TCP bind address")
	serveCmd.Flags().Bool("metrics", false, "Expose a /metrics endpoint on the control-plane HTTP server")
}

func runServe(cmd *cobra.Command, args []string) error {
	usersDir := viper.GetString("authorized-users-dir")
	httpListen := viper.GetString("http-listen")
	tcpListen := viper.GetString("tcp-listen")
	exposeMetrics := viper.GetBool("metrics")

	userTable, err := users.Load(usersDir, logger)
	if err != nil {
		return err
	}

	serverKey, err := rsa.GenerateKey(rand.Reader, serverKeyBits)
	if err != nil {
		return err
	}

	reg := registry.New()
	chal := challenges.New()

	promReg := prom.NewRegistry()
	ingestionMetrics := prom.NewIngestionObserver(promReg)
	controlMetrics := prom.NewControlPlaneObserver(promReg, reg.Len)

	ingestionSrv := ingestion.NewServer(reg, logger, ingestionMetrics)
	controlSrv := httpapi.NewServer(reg, userTable, chal, serverKey, logger, controlMetrics)

	tcpLn, err := net.Listen("tcp", tcpListen)
	if err != nil {
		return err
	}
	defer tcpLn.Close()

	httpSrv := httpapi.NewHTTPServer(httpListen, controlSrv.Mux(exposeMetrics, promReg))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return ingestionSrv.Serve(gctx, tcpLn)
	})
	group.Go(func() error {
		logger.Info("control plane listening", "addr", httpListen)
		err := httpSrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaults.HTTPWriteTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	logger.Info("ingestion server listening", "addr", tcpLn.Addr().String())
	return group.Wait()
}
