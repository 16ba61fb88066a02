package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"

	"github.com/taskmateai/taskmate/internal/models"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout is the default timeout for API calls
	DefaultTimeout = 30 * time.Second
	// DefaultMaxResponseTokens bounds the structured reply
	DefaultMaxResponseTokens = 800
	// DefaultMaxContextTasks is how many recently shown tasks go into the prompt
	DefaultMaxContextTasks = 10

	// oracleTemperature keeps the structured output near-deterministic
	oracleTemperature = 0.1

	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = "no choices in response"
)

// ConversationContext is the ground truth sent alongside the user's message
// so the model can resolve relative references.
type ConversationContext struct {
	Today    string
	Tomorrow string
	Focus    string // "tasks" or "archived_tasks"
	ViewType string // "active" or "archived"
	Tasks    []models.TaskRef
}

// RawRestoreData is the untrusted restore payload; ids stay strings until
// the resolver has checked them against the session.
type RawRestoreData struct {
	TaskIDs []string `json:"taskIds"`
	Titles  []string `json:"titles"`
}

// RawResponse is the oracle's parsed-but-unvalidated reply. Every field is
// untrusted until the resolver has processed it.
type RawResponse struct {
	Type        string          `json:"type"`
	Reply       string          `json:"reply"`
	TaskData    *TaskData       `json:"taskData,omitempty"`
	EditData    *EditData       `json:"editData,omitempty"`
	DeleteData  *DeleteData     `json:"deleteData,omitempty"`
	RestoreData *RawRestoreData `json:"restoreData,omitempty"`
	Section     string          `json:"section,omitempty"`
	Date        string          `json:"date,omitempty"`
	Suggestions []string        `json:"suggestions,omitempty"`
}

// Oracle converts a user message plus conversation context into a structured
// intent candidate. Implementations must bound their own latency.
type Oracle interface {
	Interpret(ctx context.Context, message string, convo ConversationContext) (*RawResponse, error)
}

// OpenAIOracle implements Oracle using OpenAI's chat completions API.
type OpenAIOracle struct {
	client    openai.Client
	model     string
	logger    *zap.Logger
	debugMode bool
}

// NewOpenAIOracle creates a new OpenAI-backed oracle.
func NewOpenAIOracle(apiKey, baseURL, model string, logger *zap.Logger, debugMode bool) *OpenAIOracle {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}

	httpClient := &http.Client{
		Timeout: DefaultTimeout,
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
	)

	return &OpenAIOracle{
		client:    client,
		model:     model,
		logger:    logger,
		debugMode: debugMode,
	}
}

// Interpret sends the message and context to the completion API and parses
// the JSON object it returns.
func (o *OpenAIOracle) Interpret(ctx context.Context, message string, convo ConversationContext) (*RawResponse, error) {
	prompt := buildInstructionPrompt(convo)
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(prompt),
		openai.UserMessage(message),
	}
	req := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(o.model),
		Messages:    messages,
		Temperature: openai.Float(oracleTemperature),
		MaxTokens:   openai.Int(DefaultMaxResponseTokens),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	if o.logger != nil && o.debugMode {
		o.logger.Debug("llm_api_request",
			zap.String("operation", "interpret_message"),
			zap.String("model", o.model),
			zap.Int("prompt_length", len(prompt)),
			zap.Int("context_tasks", len(convo.Tasks)),
			zap.String("message_preview", SanitizePrompt(message, false)),
		)
	}

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, req)
	latency := time.Since(start)
	if err != nil {
		if o.logger != nil && o.debugMode {
			o.logger.Debug("llm_api_error",
				zap.String("operation", "interpret_message"),
				zap.String("model", o.model),
				zap.Error(err),
				zap.Int64("latency_ms", latency.Milliseconds()),
			)
		}
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return nil, fmt.Errorf("failed to interpret message: %w", apiErr)
		}
		return nil, fmt.Errorf("failed to interpret message: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New(ErrNoChoicesInResponse)
	}
	content := resp.Choices[0].Message.Content

	if o.logger != nil && o.debugMode {
		o.logger.Debug("llm_api_response",
			zap.String("operation", "interpret_message"),
			zap.String("model", o.model),
			zap.Int("response_length", len(content)),
			zap.String("response_preview", SanitizeResponse(content, true)),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}

	return parseRawResponse(content)
}

// parseRawResponse unmarshals the model output, recovering from responses
// that wrap the JSON object in prose.
func parseRawResponse(content string) (*RawResponse, error) {
	var raw RawResponse
	data := content
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		if len(data) > 0 && data[0] != '{' {
			start := bytes.Index([]byte(data), []byte("{"))
			end := bytes.LastIndex([]byte(data), []byte("}"))
			if start != -1 && end != -1 && end > start {
				data = data[start : end+1]
			}
		}
		if err := json.Unmarshal([]byte(data), &raw); err != nil {
			return nil, fmt.Errorf("failed to parse oracle response: %w", err)
		}
	}
	return &raw, nil
}

// buildInstructionPrompt assembles the system instruction: today/tomorrow,
// what the user is currently viewing, and the exact ids of the tasks they
// were last shown. The model is told to only ever reference these ids.
func buildInstructionPrompt(convo ConversationContext) string {
	var b bytes.Buffer

	b.WriteString("You are a task-management assistant. Convert the user's message into a single JSON object describing their intent. Respond with valid JSON only.\n\n")

	b.WriteString("Context:\n")
	fmt.Fprintf(&b, "- Today's date: %s\n", convo.Today)
	fmt.Fprintf(&b, "- Tomorrow's date: %s\n", convo.Tomorrow)
	fmt.Fprintf(&b, "- The user is currently viewing: %s (%s)\n", convo.Focus, convo.ViewType)

	if len(convo.Tasks) > 0 {
		fmt.Fprintf(&b, "- Tasks the user was last shown (%s), in display order:\n", convo.ViewType)
		for _, ref := range convo.Tasks {
			fmt.Fprintf(&b, "  %d. id=%s title=%q section=%s\n", ref.Index, ref.ID, ref.Title, ref.Section)
		}
		b.WriteString("When the user refers to a task by position or name, use the id from this list. Never invent an id.\n")
	} else {
		b.WriteString("- No tasks are currently shown.\n")
	}

	b.WriteString(`
The JSON object must have a "type" field with exactly one of these values:
create_task_direct, create_task_confirmation, show_tasks, schedule_query,
edit_task_confirmation, delete_single_task_confirmation,
delete_multiple_tasks_confirmation, restore_task_confirmation,
restore_multiple_tasks_confirmation, show_archived_tasks,
list_collaborators, validation_error

Payload fields by type:
- create_task_direct / create_task_confirmation: "taskData" with
  title (string), section ("work"|"school"|"personal"), date (YYYY-MM-DD),
  startTime ({"hour":"6","minute":"30","period":"PM"}), and optionally
  endTime, priority ("High"|"Medium"|"Low"),
  recurring ("Daily"|"Weekdays"|"Weekly"|"Monthly"|"Yearly"),
  collaborators (array of names or emails).
  Omit optional fields the user did not mention. Use create_task_direct only
  when the request is simple and unambiguous; otherwise use
  create_task_confirmation.
- show_tasks / schedule_query / show_archived_tasks: optional "section" and
  "date" fields to filter.
- edit_task_confirmation: "editData" with taskRef (id or title fragment of
  the task to change) and only the fields being changed: title, section,
  date, startTime, endTime, priority, recurring ("__NONE__" to remove),
  addCollaborators, removeCollaborators, setCollaborators.
- delete_single_task_confirmation: "deleteData" with taskRef.
- delete_multiple_tasks_confirmation: "deleteData" with taskRefs (array) or
  section (to delete a whole section).
- restore_task_confirmation / restore_multiple_tasks_confirmation:
  "restoreData" with taskIds (array of ids copied from the shown archived
  tasks) and titles (matching display titles).
- validation_error: use when the request cannot be fulfilled; put an
  explanation in "reply".

Also include a short friendly "reply" string and up to three "suggestions".
Return only valid JSON.`)

	return b.String()
}
