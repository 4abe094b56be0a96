package install

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// PromptForMissingValues interactively asks for values not given as flags.
// It does nothing when stdin is not a terminal.
func PromptForMissingValues(c *Config) {
	if !isInteractive() {
		return
	}
	promptValues(c, bufio.NewReader(os.Stdin), os.Stdout)
}

func promptValues(c *Config, reader *bufio.Reader, out io.Writer) {
	if c.Backend == "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Data backend: postgrest (Supabase REST), postgres (direct) or sqlite (local file)")
		suggested := "sqlite"
		if c.SupabaseURL != "" {
			suggested = "postgrest"
		}
		c.Backend = readValue(reader, out, "Enter backend", suggested)
	}

	if c.Backend == "postgrest" && c.SupabaseURL == "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Supabase project URL")
		fmt.Fprintln(out, "Example: https://abcdefgh.supabase.co")
		c.SupabaseURL = readValue(reader, out, "Enter Supabase URL", "")
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Address the API listens on")
	c.Host = readValue(reader, out, "Enter host", c.Host)
	if port, err := strconv.Atoi(readValue(reader, out, "Enter port", strconv.Itoa(c.Port))); err == nil {
		c.Port = port
	}

	if c.InstallService {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Unix user that runs the systemd service")
		c.ServiceUser = readValue(reader, out, "Enter service user", c.ServiceUser)
	}
}

// readValue prompts for input with an optional default
func readValue(reader *bufio.Reader, out io.Writer, prompt, defaultValue string) string {
	if defaultValue != "" {
		fmt.Fprintf(out, "%s [%s]: ", prompt, defaultValue)
	} else {
		fmt.Fprintf(out, "%s: ", prompt)
	}

	input, err := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" || (err != nil && err != io.EOF) {
		return defaultValue
	}
	return input
}

// isInteractive checks if stdin is a terminal
func isInteractive() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
