package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	apifetch "github.com/theobix/simple-api-fetch"
)

var (
	cfgPath        string
	isDebug        bool
	asText         bool
	updateInterval time.Duration
	postData       string
)

var rootCmd = &cobra.Command{
	Use:           "apifetch",
	Short:         "Fetch an HTTP API and print the filtered response",
	Version:       apifetch.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var getCmd = &cobra.Command{
	Use:   "get URL",
	Short: "Send a GET request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, apifetch.MethodGet, args[0], nil)
	},
}

var postCmd = &cobra.Command{
	Use:   "post URL",
	Short: "Send a POST request with --data as the body",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var body any
		if postData != "" {
			if !json.Valid([]byte(postData)) {
				return errors.New("--data must be valid JSON")
			}
			body = json.RawMessage(postData)
		}
		return run(cmd, apifetch.MethodPost, args[0], body)
	},
}

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := apifetch.GetVersionInfo()
		if !versionJSON {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), info)
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("apifetch failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&asText, "text", false, "print the body as text instead of JSON")
	rootCmd.PersistentFlags().DurationVar(&updateInterval, "update-interval", 0, "log progress at this interval while the request runs")
	postCmd.Flags().StringVar(&postData, "data", "", "JSON request body")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print build information as JSON")

	rootCmd.AddCommand(getCmd, postCmd, versionCmd)
}

func run(cmd *cobra.Command, method apifetch.Method, url string, body any) error {
	_ = godotenv.Load()

	fc := &apifetch.FileConfig{}
	if cfgPath != "" {
		var err error
		if fc, err = apifetch.LoadFileConfig(cfgPath); err != nil {
			return err
		}
	}
	if isDebug {
		fc.Logging.Level = "debug"
	}
	if fc.Logging.Level == "" {
		fc.Logging.Level = "info"
	}

	logger := apifetch.NewLogger(os.Stderr, fc.Logging.Level, fc.Logging.Format)
	slog.SetDefault(logger)

	client := apifetch.New(fc.Options(os.Stderr)...)
	if !client.IsValid() {
		return client.ValidationError()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if asText {
		return fetch(ctx, client, method, url, body, apifetch.Text(), cmd.OutOrStdout(), func(w io.Writer, s string) error {
			_, err := fmt.Fprintln(w, s)
			return err
		})
	}
	return fetch(ctx, client, method, url, body, apifetch.JSON[any](), cmd.OutOrStdout(), func(w io.Writer, v any) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

func fetch[T any](ctx context.Context, client *apifetch.Client, method apifetch.Method, url string, body any,
	chain apifetch.Chain[*apifetch.Response, *apifetch.Response, T], out io.Writer, write func(io.Writer, T) error,
) error {
	opts := &apifetch.Options[T]{
		UpdateInterval: updateInterval,
		Callbacks: apifetch.Callbacks[T]{
			OnUpdate: func(r *apifetch.Request[T], elapsed time.Duration) {
				slog.Info("Waiting for response", "url", r.URL, "state", r.State().String(), "elapsed", elapsed.Round(time.Millisecond))
			},
		},
	}

	v, err := apifetch.NewRequest(client, method, url, chain, body, opts).Fetch(ctx)
	if err != nil {
		return err
	}
	return write(out, v)
}
