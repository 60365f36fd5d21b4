package main

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nkllon/swarmctl/pkg/config"
	"github.com/nkllon/swarmctl/pkg/controller"
	"github.com/nkllon/swarmctl/pkg/events"
	"github.com/nkllon/swarmctl/pkg/log"
	"github.com/nkllon/swarmctl/pkg/metrics"
	"github.com/nkllon/swarmctl/pkg/protocol"
	"github.com/nkllon/swarmctl/pkg/safety"
	"github.com/nkllon/swarmctl/pkg/server"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "swarmctl",
	Short: "swarmctl - Distributed multi-instance orchestration controller",
	Long: `swarmctl orchestrates fan-out execution of engineering tasks across
a swarm of worker instances: it plans distributions, launches and
monitors instances, recovers from failures, and integrates completed
work. Workers and operators talk to it over a human-readable
verb-noun-modifier text protocol.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"swarmctl version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(patternsCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: jsonOutput,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration controller and command channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		listenAddr, _ := cmd.Flags().GetString("listen")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		configPath, _ := cmd.Flags().GetString("config")
		workspaceRoot, _ := cmd.Flags().GetString("workspace-root")

		cfg := config.Default()
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
		}

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		killSwitch := safety.NewKillSwitch()
		monitor := safety.NewMonitor(safety.DefaultLimits())
		monitor.AttachKillSwitch(killSwitch)
		monitor.Start()
		defer monitor.Stop()

		ctrl, err := controller.New(&controller.Config{
			SwarmConfig:   cfg,
			Events:        broker,
			KillSwitch:    killSwitch,
			WorkspaceRoot: workspaceRoot,
		})
		if err != nil {
			return err
		}

		handler := protocol.NewHandler("controller")
		controller.RegisterDefaultHandlers(handler, ctrl)

		srv := server.New(handler)
		if err := srv.Start(listenAddr); err != nil {
			return err
		}
		defer srv.Stop()

		if metricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			go func() {
				if err := http.ListenAndServe(metricsAddr, mux); err != nil {
					log.Errorf("Metrics endpoint failed", err)
				}
			}()
			log.Info(fmt.Sprintf("Metrics available on %s/metrics", metricsAddr))
		}

		log.Info(fmt.Sprintf("Command channel listening on %s", srv.Addr()))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		log.Info(fmt.Sprintf("Received %s, shutting down", sig))
		killSwitch.EmergencyShutdown(fmt.Sprintf("signal %s received", sig))
		return nil
	},
}

var execCmd = &cobra.Command{
	Use:   "exec <command...>",
	Short: "Send a command to a running controller",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		line := strings.Join(args, " ")

		conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
		if err != nil {
			return fmt.Errorf("failed to connect to controller at %s: %w", addr, err)
		}
		defer conn.Close()

		if _, err := fmt.Fprintln(conn, line); err != nil {
			return err
		}

		if err := conn.SetReadDeadline(time.Now().Add(30 * time.Second)); err != nil {
			return err
		}
		response, err := bufio.NewReader(conn).ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		fmt.Print(response)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <command...>",
	Short: "Parse and validate a command without executing it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		handler := protocol.NewHandler("cli")

		parsed, err := handler.Parse(strings.Join(args, " "))
		if err != nil {
			return err
		}

		fmt.Printf("Parsed: %s\n", parsed.String())
		fmt.Println(handler.Validate(parsed).String())
		return nil
	},
}

var patternsCmd = &cobra.Command{
	Use:   "patterns [verb noun]",
	Short: "Show registered command patterns",
	RunE: func(cmd *cobra.Command, args []string) error {
		handler := protocol.NewHandler("cli")

		if len(args) >= 2 {
			fmt.Print(handler.Help(args[0], args[1]))
			return nil
		}
		fmt.Print(handler.Help("", ""))
		return nil
	},
}

func init() {
	serveCmd.Flags().String("listen", "127.0.0.1:7700", "Command channel listen address")
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Prometheus metrics address (empty to disable)")
	serveCmd.Flags().String("config", "", "Swarm config YAML file")
	serveCmd.Flags().String("workspace-root", "", "Root directory for instance workspaces")

	execCmd.Flags().String("addr", "127.0.0.1:7700", "Controller command channel address")
}
