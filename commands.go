package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/AnishMulay/ftserver/client"
	"github.com/AnishMulay/ftserver/config"
	"github.com/AnishMulay/ftserver/metrics"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "ftserver",
		Short:        "serve files from a directory over TCP",
		SilenceUsage: true,
	}
	root.AddCommand(
		newServeCommand(),
		newConfigCommand(),
		newGetCommand(),
		newPutCommand(),
		newListCommand(),
	)
	return root
}

// serverFlags registers the flags shared by serve and config and binds
// them to v, so a flag set on the command line beats env and file values.
func serverFlags(cmd *cobra.Command, v *viper.Viper) *string {
	var configPath string
	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	flags.StringP("address", "a", "127.0.0.1", "IP address to listen on")
	flags.IntP("port", "p", 8080, "TCP port to listen on")
	flags.StringP("root", "d", "", "directory to serve")
	flags.String("metrics-address", "", "serve prometheus metrics on this address")
	flags.Bool("watch", false, "log changes made under the root by other processes")

	v.BindPFlag("network.address", flags.Lookup("address"))
	v.BindPFlag("network.port", flags.Lookup("port"))
	v.BindPFlag("storage.root", flags.Lookup("root"))
	v.BindPFlag("network.metrics_address", flags.Lookup("metrics-address"))
	v.BindPFlag("storage.watch", flags.Lookup("watch"))
	return &configPath
}

func newServeCommand() *cobra.Command {
	v := config.New()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the file server",
		Args:  cobra.NoArgs,
	}
	configPath := serverFlags(cmd, v)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v, *configPath)
		if err != nil {
			return err
		}
		if closer := setupLogging(cfg.Log); closer != nil {
			defer closer.Close()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	}
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()
	s, err := NewFileServer(FileServerConfigFrom(cfg, m))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Run(ctx)
	})

	if cfg.Network.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		hs := &http.Server{
			Addr:              cfg.Network.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Printf("[%s]: serving metrics", hs.Addr)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func newConfigCommand() *cobra.Command {
	v := config.New()
	cmd := &cobra.Command{
		Use:   "config",
		Short: "print the effective configuration",
		Args:  cobra.NoArgs,
	}
	configPath := serverFlags(cmd, v)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v, *configPath)
		if err != nil {
			return err
		}
		return cfg.Dump(cmd.OutOrStdout())
	}
	return cmd
}

// clientFlags registers the connection flags of the client commands.
func clientFlags(cmd *cobra.Command) *client.Config {
	cc := &client.Config{}
	cmd.Flags().StringVarP(&cc.Address, "server", "s", "127.0.0.1:8080", "server address")
	cmd.Flags().DurationVarP(&cc.Timeout, "timeout", "t", time.Minute, "timeout for the whole operation")
	return cc
}

func newGetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <remote-path> [local-file]",
		Short: "download a file, to stdout unless a local file is given",
		Args:  cobra.RangeArgs(1, 2),
	}
	cc := clientFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		data, err := client.New(*cc).Read(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(args) == 1 {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(args[1], data, 0644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", args[1], humanize.Bytes(uint64(len(data))))
		return nil
	}
	return cmd
}

func newPutCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local-file|-> <remote-path>",
		Short: "upload a file, reading stdin when the local file is -",
		Args:  cobra.ExactArgs(2),
	}
	cc := clientFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if args[0] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return err
		}

		status, err := client.New(*cc).Write(cmd.Context(), args[1], data)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s (%s)\n", args[1], humanize.Bytes(uint64(len(data))), status)
		return nil
	}
	return cmd
}

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [remote-dir]",
		Short: "list a directory",
		Args:  cobra.MaximumNArgs(1),
	}
	cc := clientFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		var dir string
		if len(args) == 1 {
			dir = args[0]
		}
		out, err := client.New(*cc).List(cmd.Context(), dir)
		if err != nil {
			return err
		}
		_, err = io.WriteString(cmd.OutOrStdout(), out)
		return err
	}
	return cmd
}
