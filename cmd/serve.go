package cmd

import (
	"fmt"

	"github.com/KaramelBytes/wellrisk-cli/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var (
	srvFlags   runFlags
	srvAddr    string
	srvMaxBody int64
	srvQuiet   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the risk pipeline over HTTP",
	Long: `Starts an HTTP server. POST a CSV/XLSX body (or a multipart "file" field) to
/v1/analyze; add ?format=csv or ?format=png for the annotated CSV or the risk chart.
Every request runs an independent pipeline.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := effectiveConfig()
		dopt, err := srvFlags.datasetOptions(c)
		if err != nil {
			return err
		}
		popt, err := srvFlags.pipelineOptions(cmd.Flags(), c)
		if err != nil {
			return err
		}
		if !debug {
			gin.SetMode(gin.ReleaseMode)
		}
		s, err := server.New(server.Options{
			Pipeline:     popt,
			Dataset:      dopt,
			Summary:      srvFlags.summaryOptions(cmd.Flags(), c),
			MaxBodyBytes: srvMaxBody,
			Quiet:        srvQuiet,
		})
		if err != nil {
			return err
		}
		addr := c.ServerAddr
		if cmd.Flags().Changed("addr") {
			addr = srvAddr
		}
		fmt.Printf("✓ Listening on %s\n", addr)
		return s.Run(addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&srvAddr, "addr", ":8080", "listen address (overrides config server_addr)")
	serveCmd.Flags().Int64Var(&srvMaxBody, "max-body", server.DefaultMaxBodyBytes, "maximum request body size in bytes")
	serveCmd.Flags().BoolVar(&srvQuiet, "quiet", false, "disable request logging")
	addRunFlags(serveCmd.Flags(), &srvFlags)
}
