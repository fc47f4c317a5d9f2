package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"marley"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "marley",
		Short:         "Marley - a file based blog engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yml", "path to config file")

	rootCmd.AddCommand(
		serveCmd(),
		relatedCmd(),
		stemCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadBlog() (*marley.Blog, *slog.Logger, error) {
	cfg, err := marley.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	blog, err := marley.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return blog, logger, nil
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the blog over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			blog, logger, err := loadBlog()
			if err != nil {
				return err
			}
			defer blog.Close()
			if addr == "" {
				addr = blog.Config.Listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if mem, ok := blog.Cache.(*marley.MemoryStore); ok {
				go func() {
					err := marley.Watch(ctx, blog.Config.DataDirectory, func() {
						mem.Flush()
						logger.Info("data directory changed, cache flushed")
					}, logger)
					if err != nil {
						logger.Warn("not watching data directory", "err", err)
					}
				}()
			}

			srv := &http.Server{
				Addr:         addr,
				Handler:      marley.NewMux(blog, logger),
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  120 * time.Second,
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			logger.Info("listening", "addr", addr, "version", Version, "data_dir", blog.Config.DataDirectory)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to the configured one)")
	return cmd
}

func relatedCmd() *cobra.Command {
	var field string
	var limit int
	cmd := &cobra.Command{
		Use:   "related <post-id>",
		Short: "Print the articles most related to an article",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blog, _, err := loadBlog()
			if err != nil {
				return err
			}
			defer blog.Close()

			related, err := blog.Related(cmd.Context(), args[0], field, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, rp := range related {
				fmt.Fprintf(out, "%.4f\t%s\t%s\n", rp.Score, rp.Post.ID, rp.Post.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "field to compare (defaults to the configured one)")
	cmd.Flags().IntVar(&limit, "limit", 0, "number of articles (defaults to the configured one)")
	return cmd
}

func stemCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "stem <word...>",
		Short: "Print the stem of each word",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stemmer, err := marley.StemmerByName(name)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, w := range args {
				fmt.Fprintf(out, "%s\t%s\n", w, stemmer.Stem(w))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "stemmer", "porter", "porter, porter2 or snowball")
	return cmd
}
