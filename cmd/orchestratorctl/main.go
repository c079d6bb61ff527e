// Command orchestratorctl is a thin HTTP client for orchestratord: project
// lifecycle operations and credential commands, plus local vault key
// management. API responses are printed as indented JSON; vault subcommands
// print plain text.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const version = "0.1.0"

var serverURL string

func main() {
	rootCmd := &cobra.Command{
		Use:     "orchestratorctl",
		Short:   "interact with an orchestratord server",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", defaultServer(), "orchestrator server URL")

	rootCmd.AddCommand(newProjectCommand())
	rootCmd.AddCommand(newVaultCommand())
	rootCmd.AddCommand(newCredentialsCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func defaultServer() string {
	if s := os.Getenv("ORCHESTRATOR_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// --- HTTP client ---

type client struct {
	baseURL string
	http    *http.Client
}

func newClient() *client {
	return &client{baseURL: serverURL, http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *client) do(method, path string, params url.Values, data interface{}) ([]byte, error) {
	u := c.baseURL + path
	if params != nil {
		u += "?" + params.Encode()
	}

	var body io.Reader
	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		body = strings.NewReader(string(jsonData))
	}

	req, err := http.NewRequest(method, u, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := os.Getenv("ORCHESTRATOR_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}

func (c *client) get(path string, params url.Values) ([]byte, error) { return c.do("GET", path, params, nil) }
func (c *client) post(path string, data interface{}) ([]byte, error) { return c.do("POST", path, nil, data) }
func (c *client) put(path string, data interface{}) ([]byte, error)  { return c.do("PUT", path, nil, data) }
func (c *client) delete(path string) ([]byte, error)                 { return c.do("DELETE", path, nil, nil) }

// streamEvents reads an SSE stream and prints each event's data field.
func (c *client) streamEvents(path string) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			fmt.Println(line[len("data: "):])
		}
	}
	return scanner.Err()
}

func printJSON(data []byte) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		fmt.Println(string(data))
		return
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(string(pretty))
}

// readPassword prompts for a password on the controlling terminal without
// echoing it.
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(data), nil
}
