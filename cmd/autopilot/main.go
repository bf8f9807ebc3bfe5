package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
)

var (
	app = kingpin.New("autopilot", "Task automation client for the autopilot server")

	serverURL = app.Flag("server", "Server base URL").Default("http://localhost:3200").Envar("AUTOPILOT_SERVER").String()
	apiKey    = app.Flag("api-key", "API key").Envar("AUTOPILOT_API_KEY").String()
	owner     = app.Flag("owner", "Owner ID").Envar("AUTOPILOT_OWNER").String()

	// Task commands
	createCmd      = app.Command("create", "Create a new task")
	createTitle    = createCmd.Arg("title", "Task title").Required().String()
	createType     = createCmd.Flag("type", "Task type").Required().String()
	createPriority = createCmd.Flag("priority", "Task priority").Default("medium").String()
	createLevel    = createCmd.Flag("level", "Automation level").Default("semi_auto").String()
	createConfig   = createCmd.Flag("config", "Task config as JSON").Default("{}").String()

	listCmd   = app.Command("list", "List tasks in a queue")
	listQueue = listCmd.Flag("queue", "Queue name").Default("active").String()

	showCmd = app.Command("show", "Show task details")
	showID  = showCmd.Arg("id", "Task ID").Required().String()

	executeCmd = app.Command("execute", "Run a pending task")
	executeID  = executeCmd.Arg("id", "Task ID").Required().String()

	confirmCmd = app.Command("confirm", "Approve a task awaiting confirmation")
	confirmID  = confirmCmd.Arg("id", "Task ID").Required().String()

	rejectCmd      = app.Command("reject", "Reject a task awaiting confirmation")
	rejectID       = rejectCmd.Arg("id", "Task ID").Required().String()
	rejectFeedback = rejectCmd.Flag("feedback", "Feedback for the retry").String()

	cancelCmd = app.Command("cancel", "Cancel a task")
	cancelID  = cancelCmd.Arg("id", "Task ID").Required().String()

	auditCmd = app.Command("audit", "Show the confirmation trail of a task")
	auditID  = auditCmd.Arg("id", "Task ID").Required().String()

	levelCmd   = app.Command("level", "Set the automation level")
	levelValue = levelCmd.Arg("level", "minimal | moderate | aggressive | maximum").Required().String()

	thresholdCmd   = app.Command("threshold", "Set a confirmation threshold for a task type")
	thresholdType  = thresholdCmd.Arg("type", "Task type").Required().String()
	thresholdValue = thresholdCmd.Arg("threshold", "Accuracy threshold in [0,1]").Required().Float64()

	// Capability commands
	capabilityCmd = app.Command("capability", "Capability management commands")

	capabilityListCmd = capabilityCmd.Command("list", "List capabilities")

	capabilityEnableCmd = capabilityCmd.Command("enable", "Enable a capability")
	capabilityEnableID  = capabilityEnableCmd.Arg("id", "Capability ID").Required().String()

	capabilityDisableCmd = capabilityCmd.Command("disable", "Disable a capability")
	capabilityDisableID  = capabilityDisableCmd.Arg("id", "Capability ID").Required().String()

	// Memory commands
	memoryCmd = app.Command("memory", "Citizen memory commands")

	memoryGetCmd      = memoryCmd.Command("get", "Read a memory category")
	memoryGetCategory = memoryGetCmd.Arg("category", "Memory category").Required().String()

	memorySetCmd      = memoryCmd.Command("set", "Merge data into a memory category")
	memorySetCategory = memorySetCmd.Arg("category", "Memory category").Required().String()
	memorySetData     = memorySetCmd.Arg("data", "Partial data as JSON").Required().String()
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	c := &client{
		base:   *serverURL,
		apiKey: *apiKey,
		owner:  *owner,
		http:   &http.Client{Timeout: 30 * time.Second},
	}

	var err error
	switch command {
	case createCmd.FullCommand():
		err = c.createTask()
	case listCmd.FullCommand():
		err = c.listTasks(*listQueue)
	case showCmd.FullCommand():
		err = c.showTask(*showID)
	case executeCmd.FullCommand():
		err = c.executeTask(*executeID)
	case confirmCmd.FullCommand():
		err = c.confirmTask(*confirmID, true, "")
	case rejectCmd.FullCommand():
		err = c.confirmTask(*rejectID, false, *rejectFeedback)
	case cancelCmd.FullCommand():
		err = c.cancelTask(*cancelID)
	case auditCmd.FullCommand():
		err = c.auditTrail(*auditID)
	case levelCmd.FullCommand():
		err = c.setLevel(*levelValue)
	case thresholdCmd.FullCommand():
		err = c.setThreshold(*thresholdType, *thresholdValue)
	case capabilityListCmd.FullCommand():
		err = c.listCapabilities()
	case capabilityEnableCmd.FullCommand():
		err = c.setCapabilityEnabled(*capabilityEnableID, true)
	case capabilityDisableCmd.FullCommand():
		err = c.setCapabilityEnabled(*capabilityDisableID, false)
	case memoryGetCmd.FullCommand():
		err = c.readMemory(*memoryGetCategory)
	case memorySetCmd.FullCommand():
		err = c.mergeMemory(*memorySetCategory, *memorySetData)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("error:"), err)
		os.Exit(1)
	}
}

type client struct {
	base   string
	apiKey string
	owner  string
	http   *http.Client
}

func (c *client) do(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.owner != "" {
		req.Header.Set("X-Owner-ID", c.owner)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s (%s)", apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

type taskView struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	RetryCount  int    `json:"retry_count"`
	FailureCode string `json:"failure_code,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func statusColor(status string) string {
	switch status {
	case "completed":
		return green(status)
	case "awaiting_confirmation", "pending":
		return yellow(status)
	case "failed", "cancelled":
		return red(status)
	default:
		return status
	}
}

func (c *client) createTask() error {
	var t taskView
	err := c.do(http.MethodPost, "/api/tasks", map[string]any{
		"title":            *createTitle,
		"type":             *createType,
		"priority":         *createPriority,
		"automation_level": *createLevel,
		"config":           json.RawMessage(*createConfig),
	}, &t)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s %s\n", green("created"), t.ID, faint(t.Title))
	return nil
}

func (c *client) listTasks(queue string) error {
	var resp struct {
		Tasks []taskView `json:"tasks"`
	}
	if err := c.do(http.MethodGet, "/api/tasks?queue="+queue, nil, &resp); err != nil {
		return err
	}
	if len(resp.Tasks) == 0 {
		fmt.Println(faint("no tasks"))
		return nil
	}
	for _, t := range resp.Tasks {
		fmt.Printf("%s  %-24s %-18s %s\n", t.ID, t.Title, t.Type, statusColor(t.Status))
	}
	return nil
}

func (c *client) showTask(id string) error {
	var resp struct {
		Task  taskView `json:"task"`
		Queue string   `json:"queue"`
	}
	if err := c.do(http.MethodGet, "/api/tasks/"+id, nil, &resp); err != nil {
		return err
	}
	t := resp.Task
	fmt.Printf("id:       %s\n", t.ID)
	fmt.Printf("title:    %s\n", t.Title)
	fmt.Printf("type:     %s\n", t.Type)
	fmt.Printf("status:   %s\n", statusColor(t.Status))
	fmt.Printf("priority: %s\n", t.Priority)
	fmt.Printf("queue:    %s\n", resp.Queue)
	fmt.Printf("retries:  %d\n", t.RetryCount)
	if t.FailureCode != "" {
		fmt.Printf("failure:  %s\n", red(t.FailureCode))
	}
	fmt.Printf("created:  %s\n", t.CreatedAt)
	return nil
}

func (c *client) executeTask(id string) error {
	if err := c.do(http.MethodPost, "/api/tasks/"+id+"/execute", nil, nil); err != nil {
		return err
	}
	fmt.Printf("%s %s\n", green("executing"), id)
	return nil
}

func (c *client) confirmTask(id string, approved bool, feedback string) error {
	var t taskView
	err := c.do(http.MethodPost, "/api/tasks/"+id+"/confirm", map[string]any{
		"approved": approved,
		"feedback": feedback,
	}, &t)
	if err != nil {
		return err
	}
	if approved {
		fmt.Printf("%s %s\n", green("approved"), id)
	} else {
		fmt.Printf("%s %s %s\n", yellow("rejected"), id, faint("returned for rework"))
	}
	return nil
}

func (c *client) cancelTask(id string) error {
	if err := c.do(http.MethodPost, "/api/tasks/"+id+"/cancel", nil, nil); err != nil {
		return err
	}
	fmt.Printf("%s %s\n", red("cancelled"), id)
	return nil
}

func (c *client) auditTrail(id string) error {
	var resp struct {
		Entries []struct {
			ID        string `json:"id"`
			Approved  bool   `json:"approved"`
			Feedback  string `json:"feedback,omitempty"`
			CreatedAt string `json:"created_at"`
		} `json:"entries"`
	}
	if err := c.do(http.MethodGet, "/api/tasks/"+id+"/audit", nil, &resp); err != nil {
		return err
	}
	if len(resp.Entries) == 0 {
		fmt.Println(faint("no confirmation decisions recorded"))
		return nil
	}
	for _, e := range resp.Entries {
		decision := green("approved")
		if !e.Approved {
			decision = red("rejected")
		}
		fmt.Printf("%s  %s", e.CreatedAt, decision)
		if e.Feedback != "" {
			fmt.Printf("  %s", faint(e.Feedback))
		}
		fmt.Println()
	}
	return nil
}

func (c *client) setLevel(level string) error {
	if err := c.do(http.MethodPut, "/api/automation/level", map[string]string{"level": level}, nil); err != nil {
		return err
	}
	fmt.Printf("%s automation level set to %s\n", green("ok"), level)
	return nil
}

func (c *client) setThreshold(taskType string, threshold float64) error {
	err := c.do(http.MethodPut, "/api/automation/thresholds/"+taskType, map[string]float64{"threshold": threshold}, nil)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s threshold set to %s\n", green("ok"), taskType, strconv.FormatFloat(threshold, 'f', -1, 64))
	return nil
}

func (c *client) listCapabilities() error {
	var resp struct {
		Capabilities []struct {
			ID              string  `json:"id"`
			Category        string  `json:"category"`
			Enabled         bool    `json:"enabled"`
			AutomationLevel float64 `json:"automation_level"`
			Accuracy        float64 `json:"accuracy"`
		} `json:"capabilities"`
	}
	if err := c.do(http.MethodGet, "/api/capabilities", nil, &resp); err != nil {
		return err
	}
	for _, cp := range resp.Capabilities {
		state := green("enabled")
		if !cp.Enabled {
			state = red("disabled")
		}
		fmt.Printf("%-24s %-16s auto=%.2f accuracy=%.2f %s\n", cp.ID, cp.Category, cp.AutomationLevel, cp.Accuracy, state)
	}
	return nil
}

func (c *client) setCapabilityEnabled(id string, enabled bool) error {
	err := c.do(http.MethodPut, "/api/capabilities/"+id+"/enabled", map[string]bool{"enabled": enabled}, nil)
	if err != nil {
		return err
	}
	if enabled {
		fmt.Printf("%s %s\n", green("enabled"), id)
	} else {
		fmt.Printf("%s %s\n", red("disabled"), id)
	}
	return nil
}

func (c *client) readMemory(category string) error {
	var resp struct {
		Data map[string]any `json:"data"`
	}
	if err := c.do(http.MethodGet, "/api/memory/"+category, nil, &resp); err != nil {
		return err
	}
	out, err := json.MarshalIndent(resp.Data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func (c *client) mergeMemory(category, data string) error {
	var partial map[string]any
	if err := json.Unmarshal([]byte(data), &partial); err != nil {
		return fmt.Errorf("data must be a JSON object: %w", err)
	}
	if err := c.do(http.MethodPut, "/api/memory/"+category, partial, nil); err != nil {
		return err
	}
	fmt.Printf("%s merged into %s\n", green("ok"), category)
	return nil
}
