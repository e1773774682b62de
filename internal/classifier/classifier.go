// Package classifier turns a user's utterance into an intent name and raw
// parameters for the dispatcher.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"calendar-assistant/internal/dispatch"
	"calendar-assistant/internal/errs"
)

// Classification is the classifier's answer. Parameters are untrusted and
// are validated by dispatch.Parse.
type Classification struct {
	Intent     string         `json:"intent"`
	Parameters map[string]any `json:"parameters"`
}

// Request converts the classification into a dispatch request.
func (c Classification) Request() dispatch.Request {
	return dispatch.Request{Intent: c.Intent, Parameters: c.Parameters}
}

type Classifier interface {
	Classify(ctx context.Context, text string, now time.Time, uc dispatch.UserContext) (Classification, error)
}

const (
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 15 * time.Second
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAI classifies with a chat completion constrained to a JSON schema.
type OpenAI struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

func NewOpenAI(cfg Config, logger *slog.Logger) *OpenAI {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}
}

func (o *OpenAI) Classify(ctx context.Context, text string, now time.Time, uc dispatch.UserContext) (Classification, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Classification{}, errs.Missing("text")
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(now, uc)},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "calendar_intent",
				Schema: intentSchema,
			},
		},
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(callCtx, req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return Classification{}, ctx.Err()
		}
		o.logger.Warn("classification request failed", "error", err, "latency_ms", latency.Milliseconds())
		return Classification{}, &errs.UpstreamError{Op: "classify", Err: err}
	}
	if len(resp.Choices) == 0 {
		return Classification{}, &errs.UpstreamError{Op: "classify", Err: fmt.Errorf("empty response")}
	}

	content := resp.Choices[0].Message.Content
	out, err := parseResponse(content)
	if err != nil {
		o.logger.Warn("unparseable classification", "content", content, "error", err)
		return Classification{}, &errs.UpstreamError{Op: "classify", Err: err}
	}
	o.logger.Debug("classified",
		"intent", out.Intent,
		"latency_ms", latency.Milliseconds(),
		"tokens", resp.Usage.TotalTokens)
	return out, nil
}

var fence = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

func parseResponse(content string) (Classification, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if m := fence.FindStringSubmatch(content); len(m) > 1 {
			content = m[1]
		}
	}
	var out Classification
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return Classification{}, fmt.Errorf("decode classification: %w", err)
	}
	if out.Intent == "" {
		return Classification{}, fmt.Errorf("classification has no intent")
	}
	if out.Parameters == nil {
		out.Parameters = map[string]any{}
	}
	return out, nil
}

func systemPrompt(now time.Time, uc dispatch.UserContext) string {
	tz := uc.Timezone
	if tz == "" {
		tz = "UTC"
	}
	if loc, err := time.LoadLocation(tz); err == nil {
		now = now.In(loc)
	}

	var b strings.Builder
	b.WriteString("You route requests for a calendar assistant. Pick exactly one intent and copy the user's own words into parameters; do not convert dates or times.\n")
	fmt.Fprintf(&b, "Current time: %s (%s, %s).\n\n", now.Format(time.RFC3339), now.Weekday(), tz)
	b.WriteString("Intents:\n")
	for _, k := range dispatch.Kinds {
		fmt.Fprintf(&b, "- %s: %s\n", k, intentHelp[k])
	}
	return b.String()
}

var intentHelp = map[dispatch.Kind]string{
	dispatch.KindShowEvent:         "details of one event (event_id)",
	dispatch.KindShowSchedule:      "list events for a day or period (date)",
	dispatch.KindCreateEvent:       "create an event (title, start, end, attendees, location, description)",
	dispatch.KindUpdateEvent:       "change an event (event_id, changes)",
	dispatch.KindDeleteEvent:       "delete an event (event_id)",
	dispatch.KindSearchEvents:      "find events by text, date or attendees (query, date, attendees)",
	dispatch.KindCheckAvailability: "is the user free on a day or during a span (date, or start and end; min_duration in minutes)",
	dispatch.KindFindOverlap:       "common free time with other people (attendees, date, min_duration in minutes)",
	dispatch.KindNoAction:          "small talk or anything else (reply)",
}

var intentSchema = func() *jsonSchema {
	enum := make([]string, len(dispatch.Kinds))
	for i, k := range dispatch.Kinds {
		enum[i] = string(k)
	}
	str := func(desc string) *jsonSchema { return &jsonSchema{Type: "string", Description: desc} }
	list := &jsonSchema{Type: "array", Items: &jsonSchema{Type: "string"}, Description: "names or emails"}
	changes := &jsonSchema{
		Type: "object",
		Properties: map[string]*jsonSchema{
			"title": str(""), "start": str(""), "end": str(""),
			"description": str(""), "location": str(""), "attendees": list,
		},
	}
	return &jsonSchema{
		Type: "object",
		Properties: map[string]*jsonSchema{
			"intent": {Type: "string", Enum: enum},
			"parameters": {
				Type: "object",
				Properties: map[string]*jsonSchema{
					"title":        str("event title"),
					"start":        str("start as the user said it, e.g. \"tomorrow at 3pm\""),
					"end":          str("end as the user said it"),
					"date":         str("day or period, e.g. \"next week\""),
					"attendees":    list,
					"event_id":     str(""),
					"calendar_id":  str(""),
					"query":        str("search text"),
					"description":  str(""),
					"location":     str(""),
					"min_duration": {Type: "integer", Description: "minutes"},
					"include_self": {Type: "boolean"},
					"reply":        str("what to say back for no_action"),
					"changes":      changes,
				},
			},
		},
		Required: []string{"intent", "parameters"},
	}
}()

// jsonSchema is the subset of JSON Schema the response format needs.
type jsonSchema struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description,omitempty"`
	Enum        []string               `json:"enum,omitempty"`
	Properties  map[string]*jsonSchema `json:"properties,omitempty"`
	Items       *jsonSchema            `json:"items,omitempty"`
	Required    []string               `json:"required,omitempty"`
}

func (s *jsonSchema) MarshalJSON() ([]byte, error) {
	type alias jsonSchema
	return json.Marshal((*alias)(s))
}
