package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/samplecast/internal/env"
	"github.com/luma/samplecast/storage"
	"github.com/luma/samplecast/transport"
)

var (
	// The host to listen on
	host string

	// The port to listen for http requests on
	httpPort string

	// The port to listen for tcp clients on
	port int

	// Number of tcp listeners, defaults to the number of CPUs
	listeners int
)

func init() {
	flags := StartCmd.PersistentFlags()

	flags.IntVarP(&port, "port", "p", 7400, "The port to listen client connections on")
	flags.StringVar(&httpPort, "http-port", "7401", "The port to listen to HTTP requests on")
	flags.StringVarP(&host, "host", "a", "0.0.0.0", "The host to listen on")
	flags.IntVar(&listeners, "listeners", 0, "The number of TCP listeners to run")
}

var StartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start up the samplecast service",
	Long: `Start up the samplecast service

Usage
	samplecast start

`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		log, err := env.MakeLogger(conf.LogLevel)
		if err != nil {
			return err
		}

		defer log.Sync()

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		qos, err := env.LoadQoS(conf.QoSFile, conf.HistoryDepth)
		if err != nil {
			return err
		}

		store := storage.NewInmemoryStore(storeOptions(conf, qos, log.Named("storage")))
		defer store.Close()

		s := &http.Server{
			Addr:    net.JoinHostPort(host, httpPort),
			Handler: NewRouter(conf.DebugHTTP, store, log.Named("http")),
		}

		// Initializing the server in a goroutine so that
		// it won't block the graceful shutdown handling below
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		tcp := transport.NewTCP(transport.Options{
			Host:         host,
			Port:         port,
			NumListeners: listeners,
			Reuseport:    true,
			Store:        store,
			Log:          log.Named("transport"),
		})

		if err := tcp.Start(ctx); err != nil {
			return err
		}

		log.Info("Listening",
			zap.Any("config", conf),
			zap.Any("qos", qos),
			zap.String("host", host),
			zap.Int("port", port),
			zap.String("httpPort", httpPort))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		if err := tcp.Close(); err != nil {
			log.Error("TCP server forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}

func storeOptions(conf *env.Config, qos *env.QoS, log *zap.Logger) storage.Options {
	return storage.Options{
		Shards: conf.Shards,
		History: storage.HistoryQoS{
			KeepAll: qos.History.Kind == env.HistoryKeepAll,
			Depth:   qos.History.Depth,
		},
		MaxInstances:          qos.ResourceLimits.MaxInstances,
		MaxSamplesPerInstance: qos.ResourceLimits.MaxSamplesPerInstance,
		Log:                   log,
	}
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
