package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/target/mmk-jobqueue/internal/domain/model"
)

// fileJob is one entry of an enqueue-file document:
//
//	- type: webhook
//	  priority: high
//	  delay: 30s
//	  payload:
//	    url: https://example.com/hook
type fileJob struct {
	Type        model.JobType     `yaml:"type"`
	Priority    model.JobPriority `yaml:"priority"`
	Payload     any               `yaml:"payload"`
	Delay       time.Duration     `yaml:"delay"`
	MaxAttempts int               `yaml:"max_attempts"`
	Timeout     time.Duration     `yaml:"timeout"`
	Metadata    map[string]any    `yaml:"metadata"`
}

func parseEnqueueFile(r io.Reader, now time.Time) ([]*model.EnqueueRequest, error) {
	var jobs []fileJob
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&jobs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("no jobs in file")
		}
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, errors.New("no jobs in file")
	}

	reqs := make([]*model.EnqueueRequest, 0, len(jobs))
	for i, j := range jobs {
		req, err := j.request(now)
		if err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func (j fileJob) request(now time.Time) (*model.EnqueueRequest, error) {
	payload := json.RawMessage(`{}`)
	if j.Payload != nil {
		raw, err := json.Marshal(j.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		payload = raw
	}

	req := &model.EnqueueRequest{
		Type:           j.Type,
		Priority:       j.Priority,
		Payload:        payload,
		MaxAttempts:    j.MaxAttempts,
		TimeoutSeconds: int(j.Timeout / time.Second),
	}
	if j.Delay > 0 {
		req.ScheduledFor = model.TimePtr(now.Add(j.Delay))
	}
	if len(j.Metadata) > 0 {
		req.Metadata = make(map[string]json.RawMessage, len(j.Metadata))
		for k, v := range j.Metadata {
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encode metadata %q: %w", k, err)
			}
			req.Metadata[k] = raw
		}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}
