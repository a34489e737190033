// Package dify talks to the remote poster workflow: a file upload followed by
// a blocking workflow run that references the uploaded file.
package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"postergen/internal/domain"
	"postergen/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("dify: api key is required")

const (
	defaultBaseURL       = "https://api.dify.ai/v1"
	defaultUser          = "web-client-user"
	defaultCategoryField = "ip_name"
	defaultImageField    = "user_image"
	defaultOutputField   = "poster_url"

	// FallbackWorkflowMessage is shown when the workflow fails without saying why.
	FallbackWorkflowMessage = "generation failed, please try another photo"

	maxErrorBody = 4 << 10
)

// Options configures the Dify client.
type Options struct {
	APIKey        string
	BaseURL       string
	User          string
	CategoryField string
	ImageField    string
	OutputField   string
	HTTPClient    *http.Client
	Logger        *infra.Logger
}

// Client performs the upload and workflow calls.
type Client struct {
	apiKey        string
	baseURL       string
	user          string
	categoryField string
	imageField    string
	outputField   string
	httpClient    *http.Client
	logger        *infra.Logger
	newID         func() string
}

type uploadResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	Extension string `json:"extension"`
	MIMEType  string `json:"mime_type"`
	CreatedBy string `json:"created_by"`
	CreatedAt int64  `json:"created_at"`
}

type fileInput struct {
	Type           string `json:"type"`
	TransferMethod string `json:"transfer_method"`
	UploadFileID   string `json:"upload_file_id"`
}

type workflowRequest struct {
	Inputs       map[string]any `json:"inputs"`
	ResponseMode string         `json:"response_mode"`
	User         string         `json:"user"`
}

type workflowResponse struct {
	TaskID        string `json:"task_id"`
	WorkflowRunID string `json:"workflow_run_id"`
	Data          *struct {
		ID          string         `json:"id"`
		WorkflowID  string         `json:"workflow_id"`
		Status      string         `json:"status"`
		Outputs     map[string]any `json:"outputs"`
		Error       any            `json:"error"`
		ElapsedTime float64        `json:"elapsed_time"`
		TotalSteps  int            `json:"total_steps"`
	} `json:"data"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// NewClient constructs a client with defaults for every unset option. Timeouts
// are applied per call through the context, so the default HTTP client has none.
func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Client{
		apiKey:        apiKey,
		baseURL:       orDefault(strings.TrimRight(opts.BaseURL, "/"), defaultBaseURL),
		user:          orDefault(opts.User, defaultUser),
		categoryField: orDefault(opts.CategoryField, defaultCategoryField),
		imageField:    orDefault(opts.ImageField, defaultImageField),
		outputField:   orDefault(opts.OutputField, defaultOutputField),
		httpClient:    httpClient,
		logger:        logger,
		newID:         uuid.NewString,
	}, nil
}

// Upload sends the normalized asset and returns the remote file handle.
func (c *Client) Upload(ctx context.Context, asset domain.NormalizedAsset) (domain.RemoteHandle, error) {
	if len(asset.Data) == 0 {
		return "", domain.NewError(domain.KindValidation, "nothing to upload", nil)
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="photo.jpg"`)
	header.Set("Content-Type", asset.MediaType())
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", transportError("upload failed", fmt.Errorf("dify: build upload: %w", err))
	}
	if _, err := part.Write(asset.Data); err != nil {
		return "", transportError("upload failed", fmt.Errorf("dify: build upload: %w", err))
	}
	if err := mw.WriteField("user", c.user); err != nil {
		return "", transportError("upload failed", fmt.Errorf("dify: build upload: %w", err))
	}
	if err := mw.Close(); err != nil {
		return "", transportError("upload failed", fmt.Errorf("dify: build upload: %w", err))
	}

	start := time.Now()
	raw, err := c.do(ctx, "/files/upload", mw.FormDataContentType(), &body)
	if err != nil {
		return "", transportError("upload failed", err)
	}

	var decoded uploadResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", domain.NewError(domain.KindProtocol, "upload response could not be read", fmt.Errorf("dify: decode upload: %w", err))
	}
	id := strings.TrimSpace(decoded.ID)
	if id == "" {
		return "", domain.NewError(domain.KindProtocol, "upload response missing file id", nil)
	}
	c.logger.Debug().
		Str("file_id", id).
		Int("bytes", len(asset.Data)).
		Dur("elapsed", time.Since(start)).
		Msg("dify: uploaded file")
	return domain.RemoteHandle(id), nil
}

// RunWorkflow runs the poster workflow in blocking mode and returns the poster
// URL. The handle is consumed by this call whatever the outcome.
func (c *Client) RunWorkflow(ctx context.Context, handle domain.RemoteHandle, character domain.Character) (string, error) {
	fileID := strings.TrimSpace(string(handle))
	if fileID == "" {
		return "", domain.NewError(domain.KindValidation, "file handle is required", nil)
	}
	payload := workflowRequest{
		Inputs: map[string]any{
			c.categoryField: string(character),
			c.imageField: fileInput{
				Type:           "image",
				TransferMethod: "local_file",
				UploadFileID:   fileID,
			},
		},
		ResponseMode: "blocking",
		User:         c.user + "-" + c.newID(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", transportError("generation request failed", fmt.Errorf("dify: encode request: %w", err))
	}

	start := time.Now()
	raw, err := c.do(ctx, "/workflows/run", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", transportError("generation request failed", err)
	}

	var decoded workflowResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", domain.NewError(domain.KindProtocol, "generation response could not be read", fmt.Errorf("dify: decode workflow: %w", err))
	}
	if decoded.Data == nil {
		return "", domain.NewError(domain.KindProtocol, "generation response missing data", nil)
	}
	if strings.EqualFold(decoded.Data.Status, "failed") {
		if msg := errorText(decoded.Data.Error); msg != "" {
			return "", domain.RemoteError(msg)
		}
		return "", domain.NewError(domain.KindWorkflow, FallbackWorkflowMessage, nil)
	}
	posterURL, _ := decoded.Data.Outputs[c.outputField].(string)
	posterURL = strings.TrimSpace(posterURL)
	if posterURL == "" {
		return "", domain.NewError(domain.KindProtocol, "generation finished without a poster url", nil)
	}
	c.logger.Debug().
		Str("workflow_run_id", decoded.WorkflowRunID).
		Str("status", decoded.Data.Status).
		Str("character", string(character)).
		Dur("elapsed", time.Since(start)).
		Msg("dify: workflow finished")
	return posterURL, nil
}

func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("dify: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dify: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dify: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			return nil, fmt.Errorf("dify: status %d: %s (%s)", resp.StatusCode, detail.Message, detail.Code)
		}
		if len(raw) > maxErrorBody {
			raw = raw[:maxErrorBody]
		}
		return nil, fmt.Errorf("dify: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

func transportError(message string, cause error) error {
	return domain.NewError(domain.KindTransport, message, cause)
}

// errorText extracts a readable message from the workflow's loosely typed
// error field.
func errorText(v any) string {
	switch e := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(e)
	case map[string]any:
		if msg, ok := e["message"].(string); ok {
			return strings.TrimSpace(msg)
		}
	}
	return ""
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
