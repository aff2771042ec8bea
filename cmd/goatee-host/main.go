// Command goatee-host runs a server and a single client against each other
// inside one process, for single-machine demos where standing up a separate
// goateed and goatee-client is unnecessary ceremony. Per Design Notes §9,
// "host is a composition, not a third code path": it wires a buffer.Server
// and a buffer.Client together exactly as goateed and goatee-client would
// across two processes, just sharing one listen address instead of two.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/goatee-collab/goatee/broker/localbroker"
	"github.com/goatee-collab/goatee/buffer"
	"github.com/goatee-collab/goatee/config"
	"github.com/goatee-collab/goatee/content"
	"github.com/goatee-collab/goatee/doc"
	"github.com/goatee-collab/goatee/logging"
	"github.com/goatee-collab/goatee/protocol"
	"github.com/goatee-collab/goatee/store/memstore"
)

var (
	cfgFile  string
	docTitle string
	initial  string
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "goatee-host",
		Short: "Run a co-located goatee server and demo client for single-machine demos",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v, cfgFile)
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&docTitle, "title", "notes", "title of the demo document to create")
	cmd.Flags().StringVar(&initial, "content", "hello", "initial content of the demo document")
	config.BindServerFlags(cmd, v)
	return cmd
}

func run(ctx context.Context, v *viper.Viper, cfgFile string) error {
	if err := config.ApplyConfigFile(v, cfgFile); err != nil {
		return fmt.Errorf("goatee-host: load config file: %w", err)
	}
	cfg, err := config.LoadServer(v)
	if err != nil {
		return fmt.Errorf("goatee-host: unmarshal config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("goatee-host: %w", err)
	}
	defer log.Sync()

	// A host's server half always runs in-memory: it exists for the
	// lifetime of one demo run, not as a durable service, so persistence
	// and cross-process presence fan-out would add infrastructure
	// dependencies a single-machine demo has no use for.
	srv := buffer.NewServer(buffer.Config{
		Log:             log,
		Store:           memstore.New(),
		Broker:          localbroker.New(),
		GlobalPassword:  cfg.GlobalPassword,
		ProtocolVersion: cfg.ProtocolVersion,
	})

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: srv}
	listenErr := make(chan error, 1)
	go func() {
		listenErr <- httpSrv.ListenAndServe()
	}()
	log.Info("goatee-host server listening", zap.String("addr", cfg.ListenAddr))

	loggedIn := make(chan struct{})
	docReady := make(chan uint32, 1)
	client, err := buffer.Dial("ws://"+cfg.ListenAddr+"/", log, buffer.ClientHooks{
		LoggedIn: func(content.UserID) { close(loggedIn) },
		DocumentListed: func(info doc.Info, _ *content.UserID) {
			select {
			case docReady <- info.ID:
			default:
			}
		},
		MessageArrived: func(_ *content.UserID, text string) {
			fmt.Printf("message: %s\n", text)
		},
	})
	if err != nil {
		return fmt.Errorf("goatee-host: dial own server: %w", err)
	}

	if err := client.Login("host", protocol.Color{R: 255, G: 165, B: 0}, cfg.GlobalPassword, ""); err != nil {
		return fmt.Errorf("goatee-host: login: %w", err)
	}
	select {
	case <-loggedIn:
	case err := <-listenErr:
		return fmt.Errorf("goatee-host: server exited during login: %w", err)
	case <-time.After(5 * time.Second):
		return fmt.Errorf("goatee-host: timed out waiting for login")
	}

	if err := client.CreateDocument(docTitle, "utf-8", initial); err != nil {
		return fmt.Errorf("goatee-host: create document: %w", err)
	}
	var docID uint32
	select {
	case docID = <-docReady:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("goatee-host: timed out waiting for document")
	}

	fmt.Printf("goatee-host running; server at %s, document %q (id %d) created with content %q\n", cfg.ListenAddr, docTitle, docID, initial)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case <-runCtx.Done():
	case err := <-listenErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("goatee-host: serve: %w", err)
		}
	}
	fmt.Println("goatee-host shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
