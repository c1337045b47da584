// Command h51ctl is the operator CLI for the asset service (SPEC_FULL
// §13): `control-workers {spawn|stop|status|respawn}` manages local
// asset_worker processes, and `assets {purge|clear-tasks|monitor-tasks|
// shutdown-workers}` drives the server's /admin surface, grounded on the
// teacher's slctl flag-dispatch client (cmd/slctl/main.go).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/h51assets/h51/infrastructure/middleware"
	"github.com/h51assets/h51/pkg/version"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError(errors.New("no command specified"))
	}

	if args[0] == "version" {
		fmt.Printf("h51ctl: %s\n", version.FullVersion())
		return nil
	}

	client := newAdminClient()

	switch args[0] {
	case "control-workers":
		return handleControlWorkers(ctx, client, args[1:])
	case "assets":
		return handleAssets(ctx, client, args[1:])
	default:
		return usageError(fmt.Errorf("unknown command %q", args[0]))
	}
}

func usageError(err error) error {
	fmt.Fprintln(os.Stderr, "usage: h51ctl control-workers {spawn|stop|status|respawn}")
	fmt.Fprintln(os.Stderr, "       h51ctl assets {purge|clear-tasks|monitor-tasks|shutdown-workers}")
	return err
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// ---------------------------------------------------------------------
// control-workers: manages local asset_worker processes via the pid
// tracker in workers.go. h51worker itself owns queue-depth-based scaling
// through internal/worker.Population; h51ctl's job is the operator-facing
// coarse start/stop, not autoscaling.
// ---------------------------------------------------------------------

func handleControlWorkers(ctx context.Context, client *adminClient, args []string) error {
	if len(args) == 0 {
		return usageError(errors.New("control-workers requires a subcommand"))
	}
	switch args[0] {
	case "spawn":
		return spawnWorkers(args[1:])
	case "stop":
		return stopWorkers()
	case "respawn":
		if err := stopWorkers(); err != nil {
			return err
		}
		return spawnWorkers(args[1:])
	case "status":
		return printWorkersStatus(ctx, client)
	default:
		return usageError(fmt.Errorf("unknown control-workers subcommand %q", args[0]))
	}
}

func printWorkersStatus(ctx context.Context, client *adminClient) error {
	var status adminWorkersStatus
	if err := client.getJSON(ctx, "/admin/workers/status", &status); err != nil {
		return err
	}
	fmt.Printf("pending tasks: %d\n", len(status.Pending))
	fmt.Printf("running tasks: %d\n", len(status.Running))
	tracked, _ := loadTrackedWorkers()
	fmt.Printf("locally tracked worker processes: %d\n", len(tracked))
	return nil
}

// ---------------------------------------------------------------------
// assets: drives the server's /admin surface.
// ---------------------------------------------------------------------

func handleAssets(ctx context.Context, client *adminClient, args []string) error {
	if len(args) == 0 {
		return usageError(errors.New("assets requires a subcommand"))
	}
	switch args[0] {
	case "purge":
		var result map[string]int
		if err := client.postJSON(ctx, "/admin/assets/purge", &result); err != nil {
			return err
		}
		fmt.Printf("purged %d expired assets\n", result["purged"])
		return nil
	case "clear-tasks":
		var result map[string]int
		if err := client.postJSON(ctx, "/admin/tasks/clear", &result); err != nil {
			return err
		}
		fmt.Printf("cleared %d tasks\n", result["cleared"])
		return nil
	case "monitor-tasks":
		return client.monitorTasks(ctx)
	case "shutdown-workers":
		return stopWorkers()
	default:
		return usageError(fmt.Errorf("unknown assets subcommand %q", args[0]))
	}
}

type adminWorkersStatus struct {
	Pending []string `json:"pending"`
	Running []string `json:"running"`
}

// ---------------------------------------------------------------------
// adminClient talks to h51server's /admin/* surface, authenticated with a
// service token minted from the same shared secret the server validates
// against (SECURITY_SERVICE_JWT_SECRET), matching
// infrastructure/middleware/serviceauth.go's HS256 scheme.
// ---------------------------------------------------------------------

type adminClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// newAdminClient mints a fresh service token from SECURITY_SERVICE_JWT_SECRET
// (the same shared secret h51server validates against) rather than requiring
// the operator to pre-generate one, unless H51_SERVICE_TOKEN is set directly.
func newAdminClient() *adminClient {
	token := os.Getenv("H51_SERVICE_TOKEN")
	if token == "" {
		if secret := os.Getenv("SECURITY_SERVICE_JWT_SECRET"); secret != "" {
			gen := middleware.NewServiceTokenGenerator([]byte(secret), "h51ctl", 0)
			if minted, err := gen.Generate(); err == nil {
				token = minted
			} else {
				fmt.Fprintf(os.Stderr, "warning: mint service token: %v\n", err)
			}
		}
	}
	return &adminClient{
		baseURL: strings.TrimRight(getenv("H51_ADDR", "http://localhost:8080"), "/"),
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *adminClient) newRequest(ctx context.Context, method, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("X-H51-Service-Token", c.token)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	return req, nil
}

func (c *adminClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *adminClient) postJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodPost, path)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *adminClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// monitorTasks opens the admin websocket stream and prints each snapshot
// until interrupted.
func (c *adminClient) monitorTasks(ctx context.Context) error {
	wsURL := strings.Replace(c.baseURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL += "/admin/tasks/monitor"

	header := http.Header{}
	if c.token != "" {
		header.Set("X-H51-Service-Token", c.token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return fmt.Errorf("connect monitor stream: %w", err)
	}
	defer conn.Close()

	for {
		var status adminWorkersStatus
		if err := conn.ReadJSON(&status); err != nil {
			return nil
		}
		fmt.Printf("pending=%d running=%d\n", len(status.Pending), len(status.Running))
	}
}
