// Command goatee-client is a headless demo driver: it logs in to a running
// goateed server, creates (or subscribes to) a document, and applies a
// scripted sequence of edits, printing the converged text after each one.
// Continues the teacher's demo/main.go pattern (dial a server, drive it,
// print progress) as a real Cobra command instead of a gosh-launched
// subprocess.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/goatee-collab/goatee/buffer"
	"github.com/goatee-collab/goatee/config"
	"github.com/goatee-collab/goatee/content"
	"github.com/goatee-collab/goatee/doc"
	"github.com/goatee-collab/goatee/logging"
	"github.com/goatee-collab/goatee/protocol"
)

var (
	cfgFile  string
	docTitle string
	docID    uint32
	initial  string
	edits    []string
	interval time.Duration
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "goatee-client",
		Short: "Drive a scripted editing session against a goateed server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v, cfgFile)
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&docTitle, "title", "notes", "title of the document to create (ignored if --doc-id is set)")
	cmd.Flags().Uint32Var(&docID, "doc-id", 0, "id of an existing document to subscribe to, instead of creating one")
	cmd.Flags().StringVar(&initial, "content", "", "initial content, when creating a document")
	cmd.Flags().StringSliceVar(&edits, "edit", nil, "pos:text edit to apply, in order; may be repeated")
	cmd.Flags().DurationVar(&interval, "interval", 300*time.Millisecond, "delay between scripted edits")
	config.BindClientFlags(cmd, v)
	return cmd
}

func run(v *viper.Viper, cfgFile string) error {
	if err := config.ApplyConfigFile(v, cfgFile); err != nil {
		return fmt.Errorf("goatee-client: load config file: %w", err)
	}
	cfg, err := config.LoadClient(v)
	if err != nil {
		return fmt.Errorf("goatee-client: unmarshal config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("goatee-client: %w", err)
	}
	defer log.Sync()

	loggedIn := make(chan struct{})
	loginFailed := make(chan string, 1)
	docReady := make(chan uint32, 1)

	var client *buffer.Client
	client, err = buffer.Dial(cfg.ServerAddr, log, buffer.ClientHooks{
		LoggedIn:    func(content.UserID) { close(loggedIn) },
		LoginFailed: func(reason string) { loginFailed <- reason },
		DocumentListed: func(info doc.Info, owner *content.UserID) {
			// Only the document this run cares about (either the one it
			// just created, or the one named by --doc-id) unblocks below.
			if docID == 0 || info.ID == docID {
				select {
				case docReady <- info.ID:
				default:
				}
			}
		},
	})
	if err != nil {
		return fmt.Errorf("goatee-client: dial %s: %w", cfg.ServerAddr, err)
	}

	if err := client.Login(cfg.Name, protocol.Color{R: 100, G: 149, B: 237}, cfg.GlobalPassword, cfg.UserPassword); err != nil {
		return fmt.Errorf("goatee-client: send login: %w", err)
	}
	select {
	case <-loggedIn:
	case reason := <-loginFailed:
		return fmt.Errorf("goatee-client: login rejected: %s", reason)
	case <-time.After(5 * time.Second):
		return fmt.Errorf("goatee-client: timed out waiting for login")
	}
	fmt.Printf("logged in as %s\n", cfg.Name)

	subscribing := docID != 0
	if !subscribing {
		// Drop a document listed by login's session sync, so only the one
		// created here unblocks the wait below.
		select {
		case <-docReady:
		default:
		}
		if err := client.CreateDocument(docTitle, "utf-8", initial); err != nil {
			return fmt.Errorf("goatee-client: create document: %w", err)
		}
	}

	select {
	case id := <-docReady:
		docID = id
	case <-time.After(5 * time.Second):
		return fmt.Errorf("goatee-client: timed out waiting for document")
	}

	targetDoc := client.Document(docID)
	if targetDoc == nil {
		return fmt.Errorf("goatee-client: document %d not registered", docID)
	}
	if subscribing {
		// A document reached via sync_doclist_document at login is known
		// but not yet subscribed; the owner's implicit subscription on
		// create means the newly-created case above needs no such call.
		if err := targetDoc.Subscribe(client.Self()); err != nil {
			return fmt.Errorf("goatee-client: subscribe to document %d: %w", docID, err)
		}
		if err := waitSubscribed(targetDoc, 5*time.Second); err != nil {
			return fmt.Errorf("goatee-client: %w", err)
		}
	}
	fmt.Printf("document %d ready, text=%q\n", docID, targetDoc.Text())

	for _, e := range edits {
		pos, text, err := parseEdit(e)
		if err != nil {
			return fmt.Errorf("goatee-client: %w", err)
		}
		if err := targetDoc.Insert(pos, text, client.Self()); err != nil {
			return fmt.Errorf("goatee-client: insert %q at %d: %w", text, pos, err)
		}
		fmt.Printf("after insert(%d,%q): %q\n", pos, text, targetDoc.Text())
		time.Sleep(interval)
	}
	return nil
}

func waitSubscribed(d *doc.Coordinator, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if d.State() == doc.Subscribed {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for subscription to document %d", d.ID())
}

func parseEdit(spec string) (int, string, error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("invalid --edit %q, want pos:text", spec)
	}
	pos, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", fmt.Errorf("invalid --edit position %q: %w", parts[0], err)
	}
	return pos, parts[1], nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
