package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"resume-intel-go/internal/logger"
)

const (
	// DashScope 的 OpenAI 兼容入口
	openAICompatibleQwenAPIURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	defaultQwenModelName       = "qwen-plus"
)

// AliyunQwenChatModel 实现 model.ToolCallingChatModel 接口，
// 通过 OpenAI 兼容协议调用阿里云通义千问模型。
// 流水线内的提取与改进建议任务都不依赖工具调用，WithTools 仅为满足接口。
type AliyunQwenChatModel struct {
	apiKey      string
	modelName   string
	apiURL      string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// QwenOption AliyunQwenChatModel 的配置选项
type QwenOption func(*AliyunQwenChatModel)

// WithTemperature 设置采样温度
func WithTemperature(t float64) QwenOption {
	return func(m *AliyunQwenChatModel) {
		m.temperature = t
	}
}

// WithMaxTokens 设置响应token上限
func WithMaxTokens(n int) QwenOption {
	return func(m *AliyunQwenChatModel) {
		m.maxTokens = n
	}
}

// WithHTTPClient 替换底层HTTP客户端，测试时注入
func WithHTTPClient(c *http.Client) QwenOption {
	return func(m *AliyunQwenChatModel) {
		m.httpClient = c
	}
}

// NewAliyunQwenChatModel 创建通义千问模型客户端
func NewAliyunQwenChatModel(apiKey, modelName, apiURL string, options ...QwenOption) (*AliyunQwenChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = defaultQwenModelName
	}
	if strings.TrimSpace(apiURL) == "" {
		apiURL = openAICompatibleQwenAPIURL
	}

	m := &AliyunQwenChatModel{
		apiKey:     apiKey,
		modelName:  modelName,
		apiURL:     apiURL,
		httpClient: &http.Client{},
	}
	for _, opt := range options {
		opt(m)
	}

	logger.Info().Str("api_url", apiURL).Str("model", modelName).Msg("初始化通义千问客户端")
	return m, nil
}

// --- OpenAI 兼容请求/响应结构 ---

type openAIChatCompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []*schema.Message `json:"messages"`
	Temperature float64           `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

type openAIChatChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAICompletionResponse struct {
	Id      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []openAIChatChoice `json:"choices"`
}

// Generate 实现 model.ChatModel 接口
func (aq *AliyunQwenChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	for _, opt := range options {
		_ = opt
	}

	reqPayload := openAIChatCompletionRequest{
		Model:       aq.modelName,
		Messages:    messages,
		Temperature: aq.temperature,
		MaxTokens:   aq.maxTokens,
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, aq.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+aq.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	logger.Debug().Str("model", aq.modelName).Int("message_count", len(messages)).Msg("发送LLM请求")

	httpResp, err := aq.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API 请求失败，状态 %s: %s", httpResp.Status, string(bodyBytes))
	}

	var openAIResp openAICompletionResponse
	if err := json.Unmarshal(bodyBytes, &openAIResp); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w。响应体: %s", err, string(bodyBytes))
	}

	if len(openAIResp.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项: %s", string(bodyBytes))
	}

	apiMessage := openAIResp.Choices[0].Message
	responseContent := ""
	if apiMessage.Content != nil {
		responseContent = *apiMessage.Content
	}

	resultMessage := &schema.Message{
		Role:    schema.RoleType(apiMessage.Role),
		Content: responseContent,
	}
	if resultMessage.Role == "" {
		resultMessage.Role = schema.Assistant
	}

	return resultMessage, nil
}

// Stream 实现 model.ChatModel 接口。流水线内无流式消费场景，保留为未实现。
func (aq *AliyunQwenChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("AliyunQwenChatModel 的 Stream 方法未实现")
}

// BindTools 实现 model.ChatModel 接口。当前任务不绑定任何工具。
func (aq *AliyunQwenChatModel) BindTools(tools []*schema.ToolInfo) error {
	if len(tools) > 0 {
		logger.Warn().Int("tool_count", len(tools)).Msg("通义千问客户端忽略工具绑定请求")
	}
	return nil
}

// WithTools 实现 model.ToolCallingChatModel 接口
func (aq *AliyunQwenChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if err := aq.BindTools(tools); err != nil {
		return nil, err
	}
	return aq, nil
}

var _ model.ChatModel = (*AliyunQwenChatModel)(nil)
var _ model.ToolCallingChatModel = (*AliyunQwenChatModel)(nil)
