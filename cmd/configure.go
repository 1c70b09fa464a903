package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kris-hansen/redbiomctl/utils/config"
	"github.com/kris-hansen/redbiomctl/utils/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	listFlag      bool
	updateKeyFlag string
	setModelFlag  string
)

// Green checkmark for successful operations
const greenCheckmark = "\u2705"

// listModels is swapped in tests
var listModels = models.ListModels

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Configure redbiom, the model endpoint and history",
	Long: `Interactively configure:
  - the redbiom program, host and default context
  - the model endpoint (any OpenAI-compatible URL, Gemini or Bedrock), API key and model
  - the history store (SQLite file or PostgreSQL)

Press enter at any prompt to keep the current value. Keys found only in the
environment are never written to the config file.`,
	Example: `  redbiomctl configure
  redbiomctl configure --list
  redbiomctl configure --update-key openai
  redbiomctl configure --set-model qwen3`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if listFlag {
			listConfiguration(out, envConfig)
			return nil
		}

		reader := bufio.NewReader(cmd.InOrStdin())

		if updateKeyFlag != "" {
			return editConfig(func(c *config.EnvConfig) error {
				key, err := promptSecret(reader, out, fmt.Sprintf("Enter API key for %s: ", updateKeyFlag))
				if err != nil {
					return err
				}
				if key == "" {
					return fmt.Errorf("no API key entered")
				}
				c.SetProviderAPIKey(updateKeyFlag, key)
				fmt.Fprintf(out, "%s API key updated for %s\n", greenCheckmark, updateKeyFlag)
				return nil
			})
		}

		if setModelFlag != "" {
			return editConfig(func(c *config.EnvConfig) error {
				c.LLM.Model = setModelFlag
				provider := models.DetectProvider(setModelFlag)
				fmt.Fprintf(out, "%s Model set to %s (provider: %s)\n", greenCheckmark, setModelFlag, provider.Name())
				return nil
			})
		}

		return editConfig(func(c *config.EnvConfig) error {
			if err := configureRedbiom(reader, out, c); err != nil {
				return err
			}
			if err := configureModel(cmdContext(cmd), reader, out, c); err != nil {
				return err
			}
			if err := configureHistory(reader, out, c); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%s Configuration saved to %s\n", greenCheckmark, config.GetEnvPath())
			return nil
		})
	},
}

// promptDefault shows the current value and keeps it when the answer is blank
func promptDefault(reader *bufio.Reader, w io.Writer, question, current string) string {
	if answer := prompt(reader, w, fmt.Sprintf("%s [%s]: ", question, current)); answer != "" {
		return answer
	}
	return current
}

// promptSecret reads without echo on a terminal, and a plain line otherwise
func promptSecret(reader *bufio.Reader, w io.Writer, question string) (string, error) {
	fd := int(os.Stdin.Fd())
	if reader.Buffered() == 0 && term.IsTerminal(fd) {
		fmt.Fprint(w, question)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(w)
		if err != nil {
			return "", fmt.Errorf("error reading API key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return prompt(reader, w, question), nil
}

func configureRedbiom(reader *bufio.Reader, w io.Writer, c *config.EnvConfig) error {
	fmt.Fprintln(w, "\nredbiom")
	c.Redbiom.Program = promptDefault(reader, w, "Program", c.Redbiom.Program)
	c.Redbiom.Host = promptDefault(reader, w, "Host (REDBIOM_HOST)", c.Redbiom.Host)
	c.Redbiom.Context = promptDefault(reader, w, "Default context", c.Redbiom.Context)

	timeout := promptDefault(reader, w, "Timeout in seconds", strconv.Itoa(c.Redbiom.Timeout))
	n, err := strconv.Atoi(timeout)
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid timeout: %s", timeout)
	}
	c.Redbiom.Timeout = n
	return nil
}

func configureModel(ctx context.Context, reader *bufio.Reader, w io.Writer, c *config.EnvConfig) error {
	fmt.Fprintln(w, "\nModel endpoint")
	c.LLM.BaseURL = promptDefault(reader, w, "OpenAI-compatible base URL", c.LLM.BaseURL)

	key, err := promptSecret(reader, w, "API key (enter to keep the current one): ")
	if err != nil {
		return err
	}
	if key != "" {
		c.SetProviderAPIKey("openai", key)
	}

	var available []string
	if pc, err := c.GetProviderConfig("openai"); err == nil && pc.APIKey != "" {
		listCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		available, err = listModels(listCtx, c.LLM.BaseURL, pc.APIKey)
		cancel()
		if err != nil {
			fmt.Fprintf(w, "Warning: could not list models: %v\n", err)
		}
	}

	if len(available) > 0 {
		fmt.Fprintln(w, "\nAvailable models:")
		for i, m := range available {
			fmt.Fprintf(w, "%d. %s\n", i+1, m)
		}
	}
	answer := prompt(reader, w, fmt.Sprintf("Model (number or name) [%s]: ", c.LLM.Model))
	model, err := resolveModelChoice(answer, available)
	if err != nil {
		return err
	}
	if model != "" {
		c.LLM.Model = model
	}

	switch provider := models.DetectProvider(c.LLM.Model); provider.Name() {
	case "google":
		key, err := promptSecret(reader, w, "Gemini API key (enter to keep the current one): ")
		if err != nil {
			return err
		}
		if key != "" {
			c.SetProviderAPIKey("google", key)
		}
	case "bedrock":
		region := ""
		if pc, err := c.GetProviderConfig("bedrock"); err == nil {
			region = pc.Region
		}
		region = promptDefault(reader, w, "AWS region", region)
		if region != "" {
			if c.Providers["bedrock"] == nil {
				c.Providers["bedrock"] = &config.ProviderConfig{}
			}
			c.Providers["bedrock"].Region = region
		}
	}
	return nil
}

// resolveModelChoice turns a menu answer into a model id. A number selects
// from available, anything else is taken as a model id and blank keeps the
// current model.
func resolveModelChoice(answer string, available []string) (string, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", nil
	}
	if len(available) > 0 {
		if _, err := strconv.Atoi(answer); err == nil {
			selected, err := parseModelSelection(answer, len(available))
			if err != nil {
				return "", err
			}
			return available[selected[0]-1], nil
		}
	}
	return answer, nil
}

func configureHistory(reader *bufio.Reader, w io.Writer, c *config.EnvConfig) error {
	fmt.Fprintln(w, "\nHistory")
	enabled := promptDefault(reader, w, "Record history? (y/n)", yesNo(c.History.Enabled))
	c.History.Enabled = strings.HasPrefix(strings.ToLower(enabled), "y")
	if !c.History.Enabled {
		return nil
	}

	driver := promptDefault(reader, w, "Store (sqlite/postgres)", c.History.Driver)
	switch driver {
	case "sqlite":
		c.History.Driver = driver
		c.History.Path = promptDefault(reader, w, "SQLite file", c.HistoryPath())
	case "postgres":
		c.History.Driver = driver
		dsn := promptDefault(reader, w, "PostgreSQL DSN", c.History.DSN)
		if dsn == "" {
			return fmt.Errorf("postgres history requires a DSN")
		}
		c.History.DSN = dsn
	default:
		return fmt.Errorf("unknown history store %q", driver)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "y"
	}
	return "n"
}

// parseModelSelection parses "1,3,5-7" into 1-based indices, without duplicates
func parseModelSelection(input string, maxNum int) ([]int, error) {
	var selected []int
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "-") {
			rangeParts := strings.Split(part, "-")
			if len(rangeParts) != 2 {
				return nil, fmt.Errorf("invalid range format: %s", part)
			}
			start, err := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid range start: %s", rangeParts[0])
			}
			end, err := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid range end: %s", rangeParts[1])
			}
			if start > end {
				start, end = end, start
			}
			if start < 1 || end > maxNum {
				return nil, fmt.Errorf("range %d-%d is out of bounds (1-%d)", start, end, maxNum)
			}
			for i := start; i <= end; i++ {
				selected = append(selected, i)
			}
			continue
		}

		num, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid number: %s", part)
		}
		if num < 1 || num > maxNum {
			return nil, fmt.Errorf("number %d is out of bounds (1-%d)", num, maxNum)
		}
		selected = append(selected, num)
	}

	seen := make(map[int]bool)
	var unique []int
	for _, num := range selected {
		if !seen[num] {
			seen[num] = true
			unique = append(unique, num)
		}
	}
	if len(unique) == 0 {
		return nil, fmt.Errorf("no selection made")
	}
	return unique, nil
}

// maskKey shows only the last four characters of a secret
func maskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func listConfiguration(w io.Writer, cfg *config.EnvConfig) {
	fmt.Fprintf(w, "Configuration from %s:\n\n", config.GetEnvPath())

	fmt.Fprintln(w, "redbiom:")
	fmt.Fprintf(w, "  Program: %s\n", cfg.Redbiom.Program)
	fmt.Fprintf(w, "  Host: %s\n", cfg.Redbiom.Host)
	fmt.Fprintf(w, "  Context: %s\n", cfg.Redbiom.Context)
	fmt.Fprintf(w, "  Timeout: %ds\n", cfg.Redbiom.Timeout)

	fmt.Fprintln(w, "\nModel:")
	fmt.Fprintf(w, "  Model: %s (provider: %s)\n", cfg.LLM.Model, models.DetectProvider(cfg.LLM.Model).Name())
	fmt.Fprintf(w, "  Base URL: %s\n", cfg.LLM.BaseURL)
	fmt.Fprintf(w, "  Temperature: %.2f\n", cfg.LLM.Temperature)
	fmt.Fprintf(w, "  Max attempts: %d\n", cfg.LLM.MaxAttempts)

	if len(cfg.Providers) > 0 {
		fmt.Fprintln(w, "\nProviders:")
		for _, name := range sortedKeys(cfg.Providers) {
			p := cfg.Providers[name]
			if p == nil {
				continue
			}
			fmt.Fprintf(w, "  %s: key %s", name, maskKey(p.APIKey))
			if p.Region != "" {
				fmt.Fprintf(w, ", region %s", p.Region)
			}
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintln(w, "\nHistory:")
	switch {
	case !cfg.History.Enabled:
		fmt.Fprintln(w, "  disabled")
	case cfg.History.Driver == "postgres":
		fmt.Fprintln(w, "  PostgreSQL")
	default:
		fmt.Fprintf(w, "  SQLite: %s\n", cfg.HistoryPath())
	}

	fmt.Fprintln(w, "\nCache:")
	switch {
	case !cfg.Cache.Enabled:
		fmt.Fprintln(w, "  disabled")
	case cfg.Cache.RedisAddr != "":
		fmt.Fprintf(w, "  Redis %s, ttl %ds\n", cfg.Cache.RedisAddr, cfg.Cache.TTL)
	default:
		fmt.Fprintf(w, "  in memory, ttl %ds\n", cfg.Cache.TTL)
	}

	if cfg.Server != nil {
		printServerConfig(w, cfg.Server)
	}
}

func sortedKeys(m map[string]*config.ProviderConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	configureCmd.Flags().BoolVar(&listFlag, "list", false, "Show the current configuration")
	configureCmd.Flags().StringVar(&updateKeyFlag, "update-key", "", "Update the API key for a provider (openai, google)")
	configureCmd.Flags().StringVar(&setModelFlag, "set-model", "", "Set the model used by ask, chat and the server")
	rootCmd.AddCommand(configureCmd)
}
