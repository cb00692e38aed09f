package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/gkmerge/internal/network"
	"github.com/nvandessel/gkmerge/internal/visualization"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Visualize a generated network",
		Long: `Build a network and output it in DOT (Graphviz), JSON, or HTML format.

With --serve the HTML view is served locally together with an endpoint
that runs cascades on the network.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			noOpen, _ := cmd.Flags().GetBool("no-open")
			serve, _ := cmd.Flags().GetBool("serve")

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			tracer, err := openTracer(settings)
			if err != nil {
				return err
			}
			defer tracer.Close()

			f, err := visualization.ParseFormat(format)
			if err != nil {
				return err
			}
			built, err := buildNetwork(cmd, tracer)
			if err != nil {
				return err
			}
			net := built.Net
			title := fmt.Sprintf("gkmerge: %d banks (seed %d)", net.NumBanks(), built.Seed)

			if serve {
				return runGraphServer(cmd, net, title, noOpen)
			}

			switch f {
			case visualization.FormatDOT:
				return writeOutput(cmd, output, []byte(visualization.RenderDOT(net)))

			case visualization.FormatJSON:
				if output == "" {
					return writeJSON(cmd.OutOrStdout(), visualization.RenderJSON(net))
				}
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create %s: %w", output, err)
				}
				defer file.Close()
				return writeJSON(file, visualization.RenderJSON(net))

			default:
				return writeStaticHTML(cmd, net, title, output, noOpen)
			}
		},
	}

	addNetworkFlags(cmd)
	cmd.Flags().String("format", "dot", "Output format: dot, json, or html")
	cmd.Flags().StringP("output", "o", "", "Output file path (default: stdout, or a temp file for html)")
	cmd.Flags().Bool("no-open", false, "Don't open browser after generating HTML")
	cmd.Flags().Bool("serve", false, "Start a local server with an interactive cascade endpoint")
	return cmd
}

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Graph written to %s\n", path)
	return nil
}

// writeStaticHTML renders the graph to a self-contained HTML file.
func writeStaticHTML(cmd *cobra.Command, net *network.Network, title, output string, noOpen bool) error {
	htmlBytes, err := visualization.RenderHTML(net, title)
	if err != nil {
		return fmt.Errorf("render HTML: %w", err)
	}

	outPath := output
	if outPath == "" {
		outPath = filepath.Join(os.TempDir(), "gkmerge-graph.html")
	}
	if err := os.WriteFile(outPath, htmlBytes, 0644); err != nil {
		return fmt.Errorf("write HTML file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Graph written to %s\n", outPath)

	if !noOpen {
		if err := visualization.OpenBrowser(outPath); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, outPath)
		}
	}
	return nil
}

// runGraphServer serves the graph on localhost and blocks until Ctrl-C.
func runGraphServer(cmd *cobra.Command, net *network.Network, title string, noOpen bool) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	srvCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := visualization.NewServer(net, title)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(srvCtx) }()

	// Wait for server to start
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && srv.Addr() == "" {
		select {
		case err := <-errCh:
			return fmt.Errorf("server error: %w", err)
		case <-time.After(10 * time.Millisecond):
		}
	}
	addr := srv.Addr()
	if addr == "" {
		return fmt.Errorf("server failed to start")
	}

	url := "http://" + addr
	fmt.Fprintf(cmd.OutOrStdout(), "Graph server running at %s\n", url)
	fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")

	if !noOpen {
		if err := visualization.OpenBrowser(url); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
		}
	}

	if err := <-errCh; err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
