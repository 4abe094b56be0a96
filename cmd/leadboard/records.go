package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"leadboard/internal/resource"
	"leadboard/pkg/client"

	"github.com/spf13/cobra"
)

const defaultServerURL = "http://127.0.0.1:8080"

var (
	serverURL string
	apiKey    string
	dataArg   string
	listLimit int
	listOrder string
	filters   []string
)

// recordCommands returns the commands that talk to a running server.
func recordCommands() []*cobra.Command {
	list := &cobra.Command{
		Use:   "list COLLECTION",
		Short: "List the records of a collection",
		Example: `  leadboard list leads --filter status=new --order created_at.desc
  leadboard list kanban_columns`,
		Args: cobra.ExactArgs(1),
		RunE: runList,
	}
	list.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of records")
	list.Flags().StringVar(&listOrder, "order", "", "Sort as <field>[.asc|.desc]")
	list.Flags().StringArrayVar(&filters, "filter", nil, "Equality filter as field=value (repeatable)")

	get := &cobra.Command{
		Use:   "get COLLECTION ID",
		Short: "Show one record",
		Args:  cobra.ExactArgs(2),
		RunE:  runGet,
	}

	create := &cobra.Command{
		Use:     "create COLLECTION",
		Short:   "Create a record from JSON",
		Long:    "Create a record from JSON.\n\n" + fieldsHelp(),
		Example: `  leadboard create leads --data '{"name":"Ana","status":"new"}'`,
		Args:    cobra.ExactArgs(1),
		RunE:    runCreate,
	}

	update := &cobra.Command{
		Use:     "update COLLECTION ID",
		Short:   "Update fields of a record from JSON",
		Long:    "Update fields of a record from JSON.\n\n" + fieldsHelp(),
		Example: `  echo '{"status":"won"}' | leadboard update leads 42 --data -`,
		Args:    cobra.ExactArgs(2),
		RunE:    runUpdate,
	}

	del := &cobra.Command{
		Use:   "delete COLLECTION ID",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(2),
		RunE:  runDelete,
	}

	forward := &cobra.Command{
		Use:     "forward TARGET_URL",
		Short:   "Relay a JSON payload to a webhook through the server",
		Example: `  leadboard forward https://hooks.zapier.com/hooks/catch/1/abc --data '{"lead":"Ana"}'`,
		Args:    cobra.ExactArgs(1),
		RunE:    runForward,
	}

	for _, cmd := range []*cobra.Command{create, update, forward} {
		cmd.Flags().StringVarP(&dataArg, "data", "d", "", "JSON body, or - to read stdin")
	}

	cmds := []*cobra.Command{list, get, create, update, del, forward}
	for _, cmd := range cmds {
		cmd.GroupID = groupRecords
		cmd.Flags().StringVar(&serverURL, "url", envOr("LEADBOARD_URL", defaultServerURL), "Server base URL (also LEADBOARD_URL)")
		cmd.Flags().StringVar(&apiKey, "key", os.Getenv("LEADBOARD_API_KEY"), "API key (also LEADBOARD_API_KEY)")
	}
	return cmds
}

func newClient() (*client.Client, error) {
	return client.New(serverURL, apiKey)
}

func runList(cmd *cobra.Command, args []string) error {
	collection, err := collectionArg(args[0])
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}

	params := url.Values{}
	if listLimit > 0 {
		params.Set("limit", strconv.Itoa(listLimit))
	}
	if listOrder != "" {
		params.Set("order", listOrder)
	}
	for _, f := range filters {
		field, value, ok := strings.Cut(f, "=")
		if !ok || field == "" {
			return fmt.Errorf("invalid filter '%s' (expected field=value)", f)
		}
		params.Set(field, value)
	}

	rows, err := c.List(cmd.Context(), collection, params)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rows)
}

func runGet(cmd *cobra.Command, args []string) error {
	collection, err := collectionArg(args[0])
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	rec, err := c.Get(cmd.Context(), collection, args[1])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rec)
}

func runCreate(cmd *cobra.Command, args []string) error {
	collection, err := collectionArg(args[0])
	if err != nil {
		return err
	}
	fields, err := readFields(cmd.InOrStdin())
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	rec, err := c.Create(cmd.Context(), collection, fields)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rec)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	collection, err := collectionArg(args[0])
	if err != nil {
		return err
	}
	fields, err := readFields(cmd.InOrStdin())
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	rec, err := c.Update(cmd.Context(), collection, args[1], fields)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rec)
}

func runDelete(cmd *cobra.Command, args []string) error {
	collection, err := collectionArg(args[0])
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	if err := c.Delete(cmd.Context(), collection, args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s/%s\n", collection, args[1])
	return nil
}

func runForward(cmd *cobra.Command, args []string) error {
	raw, err := readData(cmd.InOrStdin())
	if err != nil {
		return err
	}

	var data any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("--data is not valid JSON: %w", err)
		}
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	res, err := c.ForwardWebhook(cmd.Context(), args[0], data)
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("webhook answered %d", res.Status)
	}
	return nil
}

// readData returns the --data value, reading stdin for "-".
func readData(stdin io.Reader) ([]byte, error) {
	if dataArg != "-" {
		return []byte(dataArg), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	return data, nil
}

func readFields(stdin io.Reader) (client.Record, error) {
	raw, err := readData(stdin)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, fmt.Errorf("--data is required")
	}

	var fields client.Record
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("--data must be a JSON object: %w", err)
	}
	return fields, nil
}

// collectionArg checks a COLLECTION argument before any request is made.
func collectionArg(name string) (string, error) {
	c, err := resource.ParseCollection(name)
	if err != nil {
		names := make([]string, len(resource.Collections))
		for i, known := range resource.Collections {
			names[i] = string(known)
		}
		return "", fmt.Errorf("%w (expected one of: %s)", err, strings.Join(names, ", "))
	}
	return string(c), nil
}

// fieldsHelp lists the fields the server validates per collection.
func fieldsHelp() string {
	var b strings.Builder
	b.WriteString("Validated fields:\n")
	for _, c := range resource.Collections {
		fmt.Fprintf(&b, "  %-16s %s\n", c, strings.Join(c.KnownFields(), ", "))
	}
	return b.String()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
