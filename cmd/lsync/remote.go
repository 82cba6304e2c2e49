package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/aatrooox/localsync/internal/localsync/devremote"
	"github.com/aatrooox/localsync/internal/ui"
)

var remoteCmd = &cobra.Command{
	Use:     "remote",
	GroupID: "advanced",
	Short:   "Development remote",
}

var remoteServeCmd = &cobra.Command{
	Use:         "serve",
	Short:       "Serve an in-memory remote for development",
	Annotations: map[string]string{consoleLogs: "true"},
	Long: `Serve the per-table REST protocol from memory.

Routes (under --prefix, default /api):
  GET    /{table}          list (limit, offset, search, field filters)
  GET    /{table}/{id}     get
  POST   /{table}          create; the server assigns id and updated_at
  PUT    /{table}/{id}     update; the server stamps updated_at
  DELETE /{table}/{id}     delete

Data is lost when the process exits.

Example:
  lsync remote serve --addr :8787 --token dev
  lsync config set --enabled --base-url http://localhost:8787/api --api-key dev`,
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		if !cmd.Flags().Changed("addr") {
			addr = appSettings.Remote.Addr
		}
		token, _ := cmd.Flags().GetString("token")
		if !cmd.Flags().Changed("token") {
			token = appSettings.Remote.Token
		}
		prefix, _ := cmd.Flags().GetString("prefix")

		gin.SetMode(gin.ReleaseMode)
		srv := devremote.New(&devremote.Options{
			Token:  token,
			Prefix: prefix,
			Logger: logs.Logger("remote"),
		})

		httpSrv := &http.Server{
			Addr:              addr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() { errCh <- httpSrv.ListenAndServe() }()

		fmt.Printf("%s Dev remote listening on %s%s\n", ui.RenderAccent("🌐"), addr, srv.Prefix())
		if token != "" {
			fmt.Println("   Bearer token required")
		}
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				fatal("server error: %v", err)
			}
		case <-cmd.Context().Done():
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(ctx); err != nil {
				fatal("shutdown error: %v", err)
			}
			fmt.Println("Dev remote stopped")
		}
	},
}

func init() {
	remoteServeCmd.Flags().String("addr", "127.0.0.1:8787", "Listen address (default from settings)")
	remoteServeCmd.Flags().String("token", "", "Require this bearer token")
	remoteServeCmd.Flags().String("prefix", "/api", "Route prefix")

	remoteCmd.AddCommand(remoteServeCmd)
	rootCmd.AddCommand(remoteCmd)
}
