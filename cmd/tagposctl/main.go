package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var (
	host    = flag.String("host", "localhost", "tagposd API host")
	port    = flag.Int("port", 8000, "tagposd API port")
	authKey = flag.String("auth", "", "API key, if the daemon requires one")
	timeout = flag.Duration("timeout", 60*time.Second, "request timeout")
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: tagposctl [flags] <command>

Commands:
  health        check daemon liveness
  info          show daemon info
  antennas      list antennas
  tags          list tags
  predictions   list target tag predictions
  run           trigger a pipeline run
  runs          list past pipeline runs
  events        list recent events
  reset         clear all stored data

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	var method, path string
	switch flag.Arg(0) {
	case "health":
		method, path = http.MethodGet, "/api/health"
	case "info":
		method, path = http.MethodGet, "/api/info"
	case "antennas":
		method, path = http.MethodGet, "/api/antennas"
	case "tags":
		method, path = http.MethodGet, "/api/tags"
	case "predictions":
		method, path = http.MethodGet, "/api/predictions"
	case "run":
		method, path = http.MethodPost, "/api/pipeline/run"
	case "runs":
		method, path = http.MethodGet, "/api/runs"
	case "events":
		method, path = http.MethodGet, "/api/events"
	case "reset":
		method, path = http.MethodDelete, "/api/reset"
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	if err := call(method, path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func call(method, path string) error {
	url := fmt.Sprintf("http://%s:%d%s", *host, *port, path)
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return err
	}
	if *authKey != "" {
		req.Header.Set("X-API-Key", *authKey)
	}

	client := &http.Client{Timeout: *timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		// Not JSON (CSV exports etc), print as-is.
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
