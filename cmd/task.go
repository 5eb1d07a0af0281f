package cmd

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/example/court-scheduler/internal/booking"
	"github.com/example/court-scheduler/internal/scheduler"
)

// Task commands talk to a running server over its HTTP API so submissions
// arm timers in the live scheduler instead of writing rows behind its back.
func newTaskCmd() *cobra.Command {
	var (
		addr     string
		username string
		password string
	)

	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage booking tasks on a running server",
	}
	cmd.PersistentFlags().StringVar(&addr, "addr", "http://localhost:8080", "server base URL")
	cmd.PersistentFlags().StringVar(&username, "username", "", "API username")
	cmd.PersistentFlags().StringVar(&password, "password", "", "API password")
	_ = cmd.MarkPersistentFlagRequired("username")
	_ = cmd.MarkPersistentFlagRequired("password")

	cmd.AddCommand(newTaskCreateCmd(&addr, &username, &password))
	cmd.AddCommand(newTaskListCmd(&addr, &username, &password))
	cmd.AddCommand(newTaskCancelCmd(&addr, &username, &password))
	return cmd
}

func newTaskCreateCmd(addr, username, password *string) *cobra.Command {
	var (
		name       string
		slots      []string
		targetDate string
		triggerAt  string
		notify     string
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Schedule a booking task",
		RunE: func(cmd *cobra.Command, args []string) error {
			selections, err := parseSlots(slots)
			if err != nil {
				return err
			}
			trigger, err := parseTrigger(triggerAt)
			if err != nil {
				return err
			}

			api, err := newAPIClient(*addr, *username, *password)
			if err != nil {
				return err
			}
			var res struct {
				ID string `json:"id"`
			}
			if err := api.do(http.MethodPost, "/api/tasks", map[string]any{
				"name":          name,
				"slots":         selections,
				"targetDate":    targetDate,
				"triggerAt":     trigger.Format(time.RFC3339),
				"notifyAddress": notify,
			}, &res); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "scheduled task id=%s trigger_at=%s\n", res.ID, trigger.Format(time.RFC3339))
			return nil
		},
	}

	c.Flags().StringVar(&name, "name", "", "optional task label")
	c.Flags().StringArrayVar(&slots, "slot", nil,
		`slot as "resourceId,typeId,label,HH:MM,HH:MM,price" (repeatable)`)
	c.Flags().StringVar(&targetDate, "target-date", "", "booking date YYYY-MM-DD")
	c.Flags().StringVar(&triggerAt, "trigger-at", "", `when to fire: RFC3339 or "YYYY-MM-DD HH:MM" local`)
	c.Flags().StringVar(&notify, "notify", "", "email address for the result (optional)")
	_ = c.MarkFlagRequired("slot")
	_ = c.MarkFlagRequired("target-date")
	_ = c.MarkFlagRequired("trigger-at")
	return c
}

func newTaskListCmd(addr, username, password *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := newAPIClient(*addr, *username, *password)
			if err != nil {
				return err
			}
			var res struct {
				Tasks []scheduler.TaskSummary `json:"tasks"`
			}
			if err := api.do(http.MethodGet, "/api/tasks", nil, &res); err != nil {
				return err
			}
			for _, t := range res.Tasks {
				fmt.Fprintf(os.Stdout, "id=%s name=%q trigger_at=%s\n",
					t.ID, t.Name, t.TriggerAt.Format(time.RFC3339))
			}
			if len(res.Tasks) == 0 {
				fmt.Fprintln(os.Stdout, "no pending tasks")
			}
			return nil
		},
	}
}

func newTaskCancelCmd(addr, username, password *string) *cobra.Command {
	var id string
	c := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel a pending task",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := newAPIClient(*addr, *username, *password)
			if err != nil {
				return err
			}
			var res struct {
				Cancelled bool `json:"cancelled"`
			}
			err = api.do(http.MethodDelete, "/api/tasks/"+id, nil, &res)
			if err != nil || !res.Cancelled {
				return fmt.Errorf("task %s was not cancelled (already running, finished, or unknown)", id)
			}
			fmt.Fprintf(os.Stdout, "cancelled task id=%s\n", id)
			return nil
		},
	}
	c.Flags().StringVar(&id, "id", "", "task id")
	_ = c.MarkFlagRequired("id")
	return c
}

func parseSlots(raw []string) ([]booking.SlotSelection, error) {
	var out []booking.SlotSelection
	for _, r := range raw {
		parts := strings.Split(r, ",")
		if len(parts) != 6 {
			return nil, fmt.Errorf("invalid --slot %q (want resourceId,typeId,label,start,end,price)", r)
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		out = append(out, booking.SlotSelection{
			ResourceID:     parts[0],
			ResourceTypeID: parts[1],
			Label:          parts[2],
			StartTime:      parts[3],
			EndTime:        parts[4],
			Price:          parts[5],
		})
	}
	return out, nil
}

func parseTrigger(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf(`invalid --trigger-at (want RFC3339 or "YYYY-MM-DD HH:MM")`)
	}
	return t, nil
}

type apiClient struct {
	base string
	hc   *http.Client
}

// newAPIClient logs in and keeps the session cookie in a jar.
func newAPIClient(base, username, password string) (*apiClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &apiClient{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Jar: jar, Timeout: 10 * time.Second},
	}
	if err := c.do(http.MethodPost, "/api/login", map[string]string{
		"username": username,
		"password": password,
	}, nil); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return c, nil
}

func (c *apiClient) do(method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (status=%d)", apiErr.Error, res.StatusCode)
		}
		return fmt.Errorf("request failed (status=%d)", res.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}
