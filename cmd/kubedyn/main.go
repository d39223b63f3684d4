// Package main is the entry point for the kubedyn demo binary: a
// thin cobra CLI exercising the Client facade's get/list/delete/watch
// operations against a single cluster.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kubedyn/kubedyn"
	"github.com/kubedyn/kubedyn/internal/config"
	"github.com/kubedyn/kubedyn/internal/kubedynmetrics"
	"github.com/kubedyn/kubedyn/transport"
)

// version is injected at build time via -ldflags
// (e.g. -ldflags "-X main.version=v1.2.3").
var version = "devel"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	conf, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	root := newRootCommand(conf)
	return root.ExecuteContext(ctx)
}

func newRootCommand(conf *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "kubedyn",
		Short:         "kubedyn: a dynamic, schema-discovering client for a Kubernetes-style REST/Watch API.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := conf.BindFlags(root.PersistentFlags(), config.ConnectionOptions); err != nil {
		// BindFlags only fails for a configuration option of an
		// unsupported type, which is a programming error caught long
		// before any user ever runs this binary.
		panic(err)
	}
	if err := conf.BindFlags(root.PersistentFlags(), config.ObservabilityOptions); err != nil {
		panic(err)
	}

	root.AddCommand(
		newGetCommand(conf),
		newListCommand(conf),
		newDeleteCommand(conf),
		newWatchCommand(conf),
	)
	return root
}

// newClient builds a kubedyn.Client from whichever connection option
// conf carries (§6 construction inputs): kubeconfig first, then
// bearer token, then basic auth. When conf.MetricsAddr() is set, it
// also stands up kubedynmetrics and serves it on that side listener
// for the lifetime of the process (§4.9 C9).
func newClient(ctx context.Context, conf *config.Config) (*kubedyn.Client, error) {
	var creds transport.Credentials
	var err error

	switch {
	case conf.Kubeconfig() != "":
		creds, err = transport.FromKubeconfig(conf.Kubeconfig())
		if err != nil {
			return nil, fmt.Errorf("failed to parse kubeconfig: %w", err)
		}
	case conf.Token() != "":
		if conf.MasterURL() == "" {
			return nil, errors.New("--master-url is required when using --token")
		}
		creds = transport.BearerToken(conf.MasterURL(), conf.Token())
	case conf.Username() != "":
		if conf.MasterURL() == "" {
			return nil, errors.New("--master-url is required when using --username")
		}
		creds = transport.BasicAuth(conf.MasterURL(), conf.Username(), conf.Password())
	default:
		return nil, errors.New("no credentials configured: pass --kubeconfig, --token, or --username/--password")
	}

	var opts []kubedyn.Option
	if addr := conf.MetricsAddr(); addr != "" {
		m, handler, err := kubedynmetrics.New()
		if err != nil {
			return nil, fmt.Errorf("failed to start metrics: %w", err)
		}
		serveMetrics(ctx, addr, handler)
		opts = append(opts, kubedyn.WithMetrics(m))
	}

	return kubedyn.New(ctx, creds, opts...)
}

// serveMetrics starts a Prometheus scrape endpoint on addr in the
// background and shuts it down when ctx is cancelled. It never blocks
// the caller; a listener failure is logged, not returned, since losing
// the metrics endpoint should not abort the command it was attached
// to observe.
func serveMetrics(ctx context.Context, addr string, handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "metrics listener on %s stopped: %v\n", addr, err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()
}

func newGetCommand(conf *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get <kind> <name>",
		Short: "Fetch a single resource and print it as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd.Context(), conf)
			if err != nil {
				return err
			}
			defer client.Close()

			body, err := client.GetResource(cmd.Context(), args[0], conf.Namespace(), args[1])
			if err != nil {
				return err
			}
			return printJSON(body)
		},
	}
}

func newListCommand(conf *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list <kind>",
		Short: "List every resource of a kind in the configured namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd.Context(), conf)
			if err != nil {
				return err
			}
			defer client.Close()

			body, err := client.ListResources(cmd.Context(), args[0], conf.Namespace(), kubedyn.ListOptions{})
			if err != nil {
				return err
			}
			return printJSON(body)
		},
	}
}

func newDeleteCommand(conf *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <kind> <name>",
		Short: "Delete a single resource",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd.Context(), conf)
			if err != nil {
				return err
			}
			defer client.Close()

			_, err = client.DeleteResource(cmd.Context(), args[0], conf.Namespace(), args[1])
			return err
		},
	}
}

func newWatchCommand(conf *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <kind>",
		Short: "Watch every resource of a kind and print each event as it arrives",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd.Context(), conf)
			if err != nil {
				return err
			}
			defer client.Close()

			closed := make(chan error, 1)
			handle, err := client.WatchResources(cmd.Context(), args[0], conf.Namespace(), kubedyn.WatchCallbacks{
				OnAdded:    printEvent("ADDED"),
				OnModified: printEvent("MODIFIED"),
				OnDeleted:  printEvent("DELETED"),
				OnClose:    func(err error) { closed <- err },
			})
			if err != nil {
				return err
			}
			defer handle.Stop()

			select {
			case <-cmd.Context().Done():
				return nil
			case err := <-closed:
				return err
			}
		},
	}
}

func printEvent(eventType string) func(map[string]any) {
	return func(obj map[string]any) {
		fmt.Fprintf(os.Stdout, "%s ", eventType)
		_ = printJSON(mustMarshal(obj))
	}
}

func mustMarshal(obj map[string]any) []byte {
	body, _ := json.Marshal(obj)
	return body
}

func printJSON(body []byte) error {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		_, err := os.Stdout.Write(append(body, '\n'))
		return err
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(pretty))
	return nil
}
