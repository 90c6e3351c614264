// Package domain holds the recurring schedule definitions loaded by the scheduler.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// OverrunPolicy defines what happens when an entry fires while its previous job is unfinished.
type OverrunPolicy string

const (
	// OverrunPolicySkip drops the fire while the previous job is queued, processing or retrying.
	OverrunPolicySkip OverrunPolicy = "skip"

	// OverrunPolicyQueue always enqueues a new job.
	OverrunPolicyQueue OverrunPolicy = "queue"
)

// UnmarshalText implements encoding.TextUnmarshaler. Empty text selects OverrunPolicySkip.
func (p *OverrunPolicy) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch OverrunPolicy(v) {
	case "":
		*p = OverrunPolicySkip
		return nil
	case OverrunPolicySkip, OverrunPolicyQueue:
		*p = OverrunPolicy(v)
		return nil
	default:
		return fmt.Errorf("invalid OverrunPolicy: %q", v)
	}
}

// ScheduleEntry is one recurring job: when Cron fires, a job of JobType is enqueued.
type ScheduleEntry struct {
	Name           string            `json:"name"`
	Cron           string            `json:"cron"`
	JobType        model.JobType     `json:"job_type"`
	Priority       model.JobPriority `json:"priority,omitempty"`
	Payload        json.RawMessage   `json:"payload"`
	MaxAttempts    int               `json:"max_attempts,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	Overrun        OverrunPolicy     `json:"overrun,omitempty"`
}

// cronParser accepts standard five-field expressions and descriptors such as @hourly or @every 5m.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ParseCron compiles a cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	s, err := cronParser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", expr, err)
	}
	return s, nil
}

// Validate checks the entry and reports the first problem found.
func (e ScheduleEntry) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return errors.New("schedule name is required")
	}
	if _, err := ParseCron(e.Cron); err != nil {
		return fmt.Errorf("schedule %s: %w", e.Name, err)
	}
	req := e.Request()
	if err := req.Validate(); err != nil {
		return fmt.Errorf("schedule %s: %w", e.Name, err)
	}
	switch e.Overrun {
	case "", OverrunPolicySkip, OverrunPolicyQueue:
	default:
		return fmt.Errorf("schedule %s: invalid overrun policy %q", e.Name, e.Overrun)
	}
	return nil
}

// Policy returns the overrun policy, defaulting to skip.
func (e ScheduleEntry) Policy() OverrunPolicy {
	if e.Overrun == "" {
		return OverrunPolicySkip
	}
	return e.Overrun
}

// Request builds the enqueue request for one fire of the entry.
func (e ScheduleEntry) Request() *model.EnqueueRequest {
	payload := e.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return &model.EnqueueRequest{
		Type:           e.JobType,
		Priority:       e.Priority,
		Payload:        payload,
		MaxAttempts:    e.MaxAttempts,
		TimeoutSeconds: e.TimeoutSeconds,
	}
}

// scheduleFile is the YAML layout of a schedule file. Payloads are written as YAML
// mappings and converted to JSON.
type scheduleFile struct {
	Schedules []struct {
		Name           string            `yaml:"name"`
		Cron           string            `yaml:"cron"`
		JobType        model.JobType     `yaml:"job_type"`
		Priority       model.JobPriority `yaml:"priority"`
		Payload        any               `yaml:"payload"`
		MaxAttempts    int               `yaml:"max_attempts"`
		TimeoutSeconds int               `yaml:"timeout_seconds"`
		Overrun        OverrunPolicy     `yaml:"overrun"`
	} `yaml:"schedules"`
}

// ParseSchedule decodes and validates a YAML schedule document.
//
//	schedules:
//	  - name: nightly-digest
//	    cron: "0 2 * * *"
//	    job_type: email.digest
//	    priority: low
//	    payload: {list: weekly}
func ParseSchedule(r io.Reader) ([]ScheduleEntry, error) {
	var doc scheduleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode schedule: %w", err)
	}

	seen := make(map[string]bool, len(doc.Schedules))
	entries := make([]ScheduleEntry, 0, len(doc.Schedules))
	for i, s := range doc.Schedules {
		payload, err := json.Marshal(s.Payload)
		if err != nil {
			return nil, fmt.Errorf("schedule %d payload: %w", i, err)
		}
		if s.Payload == nil {
			payload = json.RawMessage(`{}`)
		}
		entry := ScheduleEntry{
			Name:           s.Name,
			Cron:           s.Cron,
			JobType:        s.JobType,
			Priority:       s.Priority,
			Payload:        payload,
			MaxAttempts:    s.MaxAttempts,
			TimeoutSeconds: s.TimeoutSeconds,
			Overrun:        s.Overrun,
		}
		if err := entry.Validate(); err != nil {
			return nil, err
		}
		if seen[entry.Name] {
			return nil, fmt.Errorf("duplicate schedule name %q", entry.Name)
		}
		seen[entry.Name] = true
		entries = append(entries, entry)
	}
	return entries, nil
}

// LoadScheduleFile reads and validates the schedule file at path.
func LoadScheduleFile(path string) ([]ScheduleEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open schedule file: %w", err)
	}
	defer f.Close()
	return ParseSchedule(f)
}
