package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const ollamaTimeout = 120 * time.Second

// OllamaProvider talks to a local Ollama server via its chat API.
type OllamaProvider struct {
	host       string
	config     Config
	httpClient *http.Client
}

func NewOllamaProvider(config Config, host string) *OllamaProvider {
	return &OllamaProvider{
		host:       strings.TrimSuffix(host, "/"),
		config:     config,
		httpClient: &http.Client{Timeout: ollamaTimeout},
	}
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	resp, err := p.send(ctx, messages, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode ollama response: %w", err)
	}

	return result.Message.Content, nil
}

func (p *OllamaProvider) ChatStream(ctx context.Context, messages []Message, fn func(chunk string) error) error {
	resp, err := p.send(ctx, messages, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Streaming responses arrive as one JSON object per line.
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("failed to decode stream chunk: %w", err)
		}

		if chunk.Message.Content != "" {
			if err := fn(chunk.Message.Content); err != nil {
				return err
			}
		}
		if chunk.Done {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read failed: %w", err)
	}

	return nil
}

func (p *OllamaProvider) send(ctx context.Context, messages []Message, stream bool) (*http.Response, error) {
	chatMessages := make([]ollamaMessage, 0, len(messages))
	for _, m := range messages {
		chatMessages = append(chatMessages, ollamaMessage{Role: m.Role, Content: m.Content})
	}

	payload, err := json.Marshal(ollamaRequest{
		Model:    p.config.Model,
		Messages: chatMessages,
		Stream:   stream,
		Options: ollamaOptions{
			Temperature: p.config.Temperature,
			NumPredict:  p.config.MaxTokens,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("ollama request failed with status %d", resp.StatusCode)
	}

	return resp, nil
}
