package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kris-hansen/redbiomctl/utils/config"
	"github.com/kris-hansen/redbiomctl/utils/logging"
	"github.com/kris-hansen/redbiomctl/utils/models"
	"github.com/kris-hansen/redbiomctl/utils/runner"
	"github.com/kris-hansen/redbiomctl/utils/server"
	"github.com/spf13/cobra"
)

var serverPort int

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the HTTP API",
	Long: `Start the redbiomctl HTTP server or manage its configuration.

Running 'redbiomctl server' without a subcommand starts the server on the
configured port (default: 8088).

Endpoints:
  GET  /health                 Health check
  GET  /v1/grammar             Every redbiom operation and its flags
  POST /v1/build               Build a command from family, action and params
  POST /v1/validate            Validate a command
  POST /v1/ask                 Turn a question into validated commands
  POST /v1/run                 Execute a validated command (when run-exec is on)

OpenAI-Compatible Endpoints (when enabled):
  GET  /v1/models              Lists the redbiom-assistant model
  POST /v1/chat/completions    Ask the assistant through the chat completions API`,
	Example: `  # Start the server
  redbiomctl server

  # Start on another port for this run only
  redbiomctl server --port 9000

  # View current configuration
  redbiomctl server show

  # Allow clients to execute redbiom through POST /v1/run
  redbiomctl server run-exec on`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmdContext(cmd)
		if serverPort > 0 {
			envConfig.GetServer().Port = serverPort
		}

		store := openHistory(ctx)
		defer closeHistory(store)

		opts := server.Options{
			Runner:  runner.New(runner.ConfigFrom(envConfig.Redbiom)),
			History: store,
			Version: getVersion(),
			Assistant: func() (server.Asker, error) {
				a, err := newAssistant(ctx, "", nil)
				if err != nil {
					return nil, err
				}
				return a, nil
			},
		}
		if _, err := models.NewFromConfig(envConfig); err != nil {
			logging.Warn("Assistant endpoints disabled", "err", err)
			opts.Assistant = nil
		}
		return server.New(envConfig, opts).Run(ctx)
	},
}

var showServerCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current server configuration",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printServerConfig(cmd.OutOrStdout(), envConfig.GetServer())
	},
}

func printServerConfig(w io.Writer, s *config.ServerConfig) {
	fmt.Fprintf(w, "\nServer Configuration:\n")
	fmt.Fprintf(w, "Port: %d\n", s.Port)
	fmt.Fprintf(w, "Authentication Enabled: %v\n", s.Enabled)
	if s.BearerToken != "" {
		fmt.Fprintf(w, "Bearer Token: %s\n", s.BearerToken)
	}
	fmt.Fprintf(w, "Command Execution (/v1/run): %v\n", s.RunEnabled)

	fmt.Fprintf(w, "\nCORS Configuration:\n")
	fmt.Fprintf(w, "Enabled: %v\n", s.CORS.Enabled)
	if s.CORS.Enabled {
		fmt.Fprintf(w, "Allowed Origins: %s\n", strings.Join(s.CORS.AllowedOrigins, ", "))
		fmt.Fprintf(w, "Allowed Methods: %s\n", strings.Join(s.CORS.AllowedMethods, ", "))
		fmt.Fprintf(w, "Allowed Headers: %s\n", strings.Join(s.CORS.AllowedHeaders, ", "))
		fmt.Fprintf(w, "Max Age: %d seconds\n", s.CORS.MaxAge)
	}

	fmt.Fprintf(w, "\nOpenAI Compatibility:\n")
	fmt.Fprintf(w, "Enabled: %v\n", s.OpenAICompat.Enabled)
	if s.OpenAICompat.Enabled {
		prefix := s.OpenAICompat.Prefix
		if prefix == "" {
			prefix = "/v1"
		}
		fmt.Fprintf(w, "Endpoints: %s/models, %s/chat/completions\n", prefix, prefix)
	}
}

// editConfig loads the config file without environment overrides, applies
// edit and saves the result
func editConfig(edit func(*config.EnvConfig) error) error {
	path := config.GetEnvPath()
	cfg, err := config.LoadEnvConfigFile(path)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	if err := edit(cfg); err != nil {
		return err
	}
	if err := config.SaveEnvConfig(path, cfg); err != nil {
		return fmt.Errorf("error saving configuration: %w", err)
	}
	return nil
}

// parseOnOff accepts "on" or "off" in any case
func parseOnOff(arg string) (bool, error) {
	switch strings.ToLower(arg) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("please specify either 'on' or 'off', got %q", arg)
}

var updatePortCmd = &cobra.Command{
	Use:     "port <port-number>",
	Short:   "Set the server port",
	Example: `  redbiomctl server port 3000`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := strconv.Atoi(args[0])
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("invalid port number: %s", args[0])
		}
		if err := editConfig(func(c *config.EnvConfig) error {
			c.GetServer().Port = port
			return nil
		}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Server port updated to %d\n", port)
		return nil
	},
}

var toggleAuthCmd = &cobra.Command{
	Use:   "auth <on|off>",
	Short: "Enable or disable bearer token authentication",
	Long: `Enable or disable bearer token authentication for the HTTP server.

When enabled, every request except /health must include the header:
  Authorization: Bearer <token>

A token is generated when auth is first enabled.
Use 'redbiomctl server newtoken' to generate a new token.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		enable, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		err = editConfig(func(c *config.EnvConfig) error {
			s := c.GetServer()
			s.Enabled = enable
			if s.Enabled && s.BearerToken == "" {
				token, err := config.GenerateBearerToken()
				if err != nil {
					return err
				}
				s.BearerToken = token
				fmt.Fprintf(cmd.OutOrStdout(), "Generated new bearer token: %s\n", token)
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Server authentication %s\n", enabledWord(enable))
		return nil
	},
}

var newTokenCmd = &cobra.Command{
	Use:   "newtoken",
	Short: "Generate a new bearer token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := config.GenerateBearerToken()
		if err != nil {
			return err
		}
		if err := editConfig(func(c *config.EnvConfig) error {
			c.GetServer().BearerToken = token
			return nil
		}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Generated new bearer token: %s\n", token)
		return nil
	},
}

var runExecCmd = &cobra.Command{
	Use:   "run-exec <on|off>",
	Short: "Allow or forbid command execution through POST /v1/run",
	Long: `POST /v1/run executes redbiom on the server host. It is off by default and
the route is not registered at all while off. Commands are always validated
first; unsafe commands are never executed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		enable, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		authOn := false
		if err := editConfig(func(c *config.EnvConfig) error {
			s := c.GetServer()
			s.RunEnabled = enable
			authOn = s.Enabled
			return nil
		}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Command execution %s\n", enabledWord(enable))
		if enable && !authOn {
			newPrinter().Warn("authentication is off; anyone who can reach the port can run redbiom")
		}
		return nil
	},
}

var corsCmd = &cobra.Command{
	Use:   "cors",
	Short: "Configure CORS settings interactively",
	Long: `Configure Cross-Origin Resource Sharing (CORS) settings for the server.

The prompts ask for:
  - Enable/disable CORS
  - Allowed origins
  - Allowed HTTP methods
  - Allowed headers
  - Max age of preflight responses`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)
		if err := editConfig(func(c *config.EnvConfig) error {
			if err := configureCORS(reader, cmd.OutOrStdout(), c.GetServer()); err != nil {
				return fmt.Errorf("error configuring CORS: %w", err)
			}
			return nil
		}); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "CORS configuration saved")
		return nil
	},
}

// prompt writes question and returns the trimmed answer line
func prompt(reader *bufio.Reader, w io.Writer, question string) string {
	fmt.Fprint(w, question)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

// splitList splits a comma-separated answer, dropping blanks
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// configureCORS handles the interactive CORS configuration
func configureCORS(reader *bufio.Reader, w io.Writer, s *config.ServerConfig) error {
	s.CORS.Enabled = strings.ToLower(prompt(reader, w, "Enable CORS? (y/n): ")) == "y"
	if !s.CORS.Enabled {
		return nil
	}
	defaults := config.DefaultServerConfig().CORS

	if origins := prompt(reader, w, "Enter allowed origins (comma-separated, * for all, default: *): "); origins != "" && origins != "*" {
		s.CORS.AllowedOrigins = splitList(origins)
	} else {
		s.CORS.AllowedOrigins = []string{"*"}
	}

	if methods := prompt(reader, w, fmt.Sprintf("Enter allowed methods (comma-separated, default: %s): ", strings.Join(defaults.AllowedMethods, ","))); methods != "" {
		s.CORS.AllowedMethods = splitList(methods)
	} else {
		s.CORS.AllowedMethods = defaults.AllowedMethods
	}

	if headers := prompt(reader, w, fmt.Sprintf("Enter allowed headers (comma-separated, default: %s): ", strings.Join(defaults.AllowedHeaders, ","))); headers != "" {
		s.CORS.AllowedHeaders = splitList(headers)
	} else {
		s.CORS.AllowedHeaders = defaults.AllowedHeaders
	}

	s.CORS.MaxAge = defaults.MaxAge
	if maxAge := prompt(reader, w, fmt.Sprintf("Enter max age in seconds (default: %d): ", defaults.MaxAge)); maxAge != "" {
		n, err := strconv.Atoi(maxAge)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid max age: %s", maxAge)
		}
		s.CORS.MaxAge = n
	}
	return nil
}

var openaiCompatCmd = &cobra.Command{
	Use:   "openai-compat <on|off>",
	Short: "Enable or disable OpenAI-compatible API endpoints",
	Long: `Enable or disable the OpenAI-compatible endpoints (/v1/models, /v1/chat/completions).

Chat clients that speak the OpenAI API can then talk to the redbiom assistant:
  Base URL: http://localhost:8088/v1
  API Key:  <your redbiomctl bearer token>
  Model:    ` + server.AssistantModel,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		enable, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		if err := editConfig(func(c *config.EnvConfig) error {
			s := c.GetServer()
			s.OpenAICompat.Enabled = enable
			if s.OpenAICompat.Prefix == "" {
				s.OpenAICompat.Prefix = "/v1"
			}
			return nil
		}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OpenAI compatibility mode %s\n", enabledWord(enable))
		return nil
	},
}

func enabledWord(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 0, "listen on this port instead of the configured one")
	serverCmd.AddCommand(showServerCmd)
	serverCmd.AddCommand(updatePortCmd)
	serverCmd.AddCommand(toggleAuthCmd)
	serverCmd.AddCommand(newTokenCmd)
	serverCmd.AddCommand(runExecCmd)
	serverCmd.AddCommand(corsCmd)
	serverCmd.AddCommand(openaiCompatCmd)
	rootCmd.AddCommand(serverCmd)
}
