// Package chatideactl implements the operator and chat command line client.
package chatideactl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chatidea/chatidea/internal/query"
	"github.com/chatidea/chatidea/internal/storage"
)

// ObjectStoreOpener connects to the configured object store and returns it
// with the documents prefix. It is only called by commands that need it.
type ObjectStoreOpener func(ctx context.Context) (storage.ObjectStore, string, error)

// SourceOpener connects to the relational database holding the explored
// tables. The returned function releases the connection.
type SourceOpener func(ctx context.Context) (query.Engine, func() error, error)

type Options struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	HTTPClient      *http.Client
	OpenObjectStore ObjectStoreOpener
	OpenSource      SourceOpener
	// TablePrefix is where snapshot writes `<table>.parquet`.
	TablePrefix     string
	Stdin           io.Reader
	Stdout          io.Writer
	Stderr          io.Writer
}

type command struct {
	args    string
	summary string
	minArgs int
	run     func(ctx context.Context, env *runEnv, args []string) error
}

var commands = map[string]command{
	"health":      {summary: "GET /v1/health", run: getJSON("/v1/health")},
	"ready":       {summary: "GET /v1/ready", run: getJSON("/v1/ready")},
	"concepts":    {summary: "GET /v1/concepts", run: getJSON("/v1/concepts")},
	"new-session": {summary: "POST /v1/sessions", run: runNewSession},
	"say":         {args: "<session> <text>", summary: "send one message and print the reply", minArgs: 2, run: runSay},
	"chat":        {summary: "interactive conversation on a new session", run: runChat},
	"history":     {args: "<session>", summary: "GET /v1/sessions/{session}/history", minArgs: 1, run: runHistory},
	"reset":       {args: "<session>", summary: "DELETE /v1/sessions/{session}", minArgs: 1, run: runReset},
	"validate":    {args: "<dir>", summary: "load and validate the documents of a directory", minArgs: 1, run: runValidate},
	"publish":     {args: "<dir>", summary: "upload the documents of a directory to the object store", minArgs: 1, run: runPublish},
	"objects":     {args: "[prefix]", summary: "list object store keys", run: runObjects},
	"introspect":  {args: "<dir>", summary: "draft schema and view documents from the source database", minArgs: 1, run: runIntrospect},
	"snapshot":    {args: "<dir>", summary: "export the tables of a documents directory as parquet", minArgs: 1, run: runSnapshot},
}

var commandOrder = []string{"health", "ready", "concepts", "new-session", "say", "chat", "history", "reset", "validate", "publish", "objects", "introspect", "snapshot"}

type runEnv struct {
	client       *http.Client
	baseURL      string
	apiKey       string
	rawJSON      bool
	opener       ObjectStoreOpener
	sourceOpener SourceOpener
	tablePrefix  string
	stdin        io.Reader
	stdout       io.Writer
	stderr       io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	stdin := defaults.Stdin
	if stdin == nil {
		stdin = strings.NewReader("")
	}

	fs := flag.NewFlagSet("chatideactl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "chatidea API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout (e.g. 10s)")
	tablePrefix := fs.String("table-prefix", firstNonEmpty(defaults.TablePrefix, "tables"), "object store prefix of the table snapshots")
	rawJSON := fs.Bool("json", false, "print raw JSON replies instead of rendered text")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	name := strings.TrimSpace(fs.Arg(0))
	cmd, ok := commands[name]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		writeUsage(stderr)
		return 2
	}
	cmdArgs := fs.Args()[1:]
	if len(cmdArgs) < cmd.minArgs {
		_, _ = fmt.Fprintf(stderr, "usage: chatideactl %s %s\n", name, cmd.args)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}
	env := &runEnv{
		client:       client,
		baseURL:      strings.TrimRight(*baseURL, "/"),
		apiKey:       strings.TrimSpace(*apiKey),
		rawJSON:      *rawJSON,
		opener:       defaults.OpenObjectStore,
		sourceOpener: defaults.OpenSource,
		tablePrefix:  *tablePrefix,
		stdin:        stdin,
		stdout:       stdout,
		stderr:       stderr,
	}
	if err := cmd.run(ctx, env, cmdArgs); err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return 1
	}
	return 0
}

// httpError carries a non-2xx reply.
type httpError struct {
	status int
	body   []byte
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, strings.TrimSpace(string(e.body)))
}

func (e *runEnv) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.apiKey != "" {
		req.Header.Set("X-API-Key", e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &httpError{status: resp.StatusCode, body: raw}
	}
	return raw, nil
}

func (e *runEnv) printJSON(raw []byte) {
	if pretty, ok := prettyJSON(raw); ok {
		_, _ = fmt.Fprintln(e.stdout, pretty)
		return
	}
	if len(raw) > 0 {
		_, _ = fmt.Fprintln(e.stdout, string(raw))
	}
}

func getJSON(path string) func(context.Context, *runEnv, []string) error {
	return func(ctx context.Context, env *runEnv, _ []string) error {
		raw, err := env.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		env.printJSON(raw)
		return nil
	}
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: chatideactl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	for _, name := range commandOrder {
		cmd := commands[name]
		_, _ = fmt.Fprintf(w, "  %-30s %s\n", strings.TrimSpace(name+" "+cmd.args), cmd.summary)
	}
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
