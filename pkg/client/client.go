package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
)

// Client is a client for the QA API
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Error is returned when the API answers with a non-2xx status.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
}

// Model describes one entry of the available models listing.
type Model struct {
	ID         string `json:"id"`
	Configured bool   `json:"configured"`
}

// Term is one entry of a session's term-frequency table.
type Term struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// NewClient creates a new QA API client
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
	}
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
		return &Error{StatusCode: resp.StatusCode, Message: body.Error}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postForm(path string, form url.Values, out interface{}) error {
	req, err := http.NewRequest(http.MethodPost, c.BaseURL+path, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

// UploadFile uploads a file from disk and returns the new session id.
// The server detects the media type from the content.
func (c *Client) UploadFile(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	return c.Upload(filepath.Base(filePath), "", file)
}

// Upload sends a document with an optional declared content type and returns the new session id.
func (c *Client) Upload(filename, contentType string, r io.Reader) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return "", err
	}

	_, err = io.Copy(part, r)
	if err != nil {
		return "", err
	}

	err = writer.Close()
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, c.BaseURL+"/upload-file/", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var result struct {
		SessionID string `json:"session_id"`
	}
	if err := c.do(req, &result); err != nil {
		return "", err
	}
	return result.SessionID, nil
}

// UploadURL asks the server to download a page, or the pages of a sitemap,
// and returns the new session id.
func (c *Client) UploadURL(rawURL string) (string, error) {
	form := url.Values{}
	form.Set("url", rawURL)

	var result struct {
		SessionID string `json:"session_id"`
	}
	if err := c.postForm("/upload-url/", form, &result); err != nil {
		return "", err
	}
	return result.SessionID, nil
}

// AskQuestion asks the selected models about the session's document.
// An empty model list asks the server's default models.
func (c *Client) AskQuestion(sessionID, question string, models ...string) (map[string]string, error) {
	form := url.Values{}
	form.Set("session_id", sessionID)
	form.Set("question", question)
	for _, m := range models {
		form.Add("models", m)
	}

	var result struct {
		Responses map[string]string `json:"responses"`
	}
	if err := c.postForm("/ask-question/", form, &result); err != nil {
		return nil, err
	}
	return result.Responses, nil
}

// CloseSession discards a session.
func (c *Client) CloseSession(sessionID string) error {
	form := url.Values{}
	form.Set("session_id", sessionID)
	return c.postForm("/close-session/", form, nil)
}

// AvailableModels lists the models the server knows about.
func (c *Client) AvailableModels() ([]Model, error) {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+"/available-models/", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Models []Model `json:"models"`
	}
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return result.Models, nil
}

// Terms returns the most frequent terms of a session's document.
func (c *Client) Terms(sessionID string, limit int) ([]Term, error) {
	u := fmt.Sprintf("%s/sessions/%s/terms?limit=%s", c.BaseURL, url.PathEscape(sessionID), strconv.Itoa(limit))
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Terms []Term `json:"terms"`
	}
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return result.Terms, nil
}
