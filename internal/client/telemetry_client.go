package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fieldpulse/dispatch-monitor/internal/model"
)

// TelemetrySource 车辆遥测数据源 (辅助核验数据)
//
// 遥测缺失是正常状态：实现可以返回空 map，规则会把缺失当作
// 核验未知而不触发。
type TelemetrySource interface {
	FetchFixes(ctx context.Context, assigneeIDs []string) (map[string]*model.TelemetryFix, error)
}

// TelemetryClient 车辆遥测 API 客户端
type TelemetryClient struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// NewTelemetryClient 创建遥测 API 客户端
func NewTelemetryClient(baseURL, apiToken string, timeout time.Duration) *TelemetryClient {
	return &TelemetryClient{
		baseURL:  baseURL,
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type fixesResponse struct {
	Fixes []*model.TelemetryFix `json:"fixes"`
}

// FetchFixes 拉取指定作业人员的最新定位
func (c *TelemetryClient) FetchFixes(ctx context.Context, assigneeIDs []string) (map[string]*model.TelemetryFix, error) {
	if len(assigneeIDs) == 0 {
		return map[string]*model.TelemetryFix{}, nil
	}

	endpoint := fmt.Sprintf("%s/api/v1/fixes/latest?%s", c.baseURL, url.Values{
		"assignees": {strings.Join(assigneeIDs, ",")},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build fixes request: %w", err)
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch fixes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch fixes: upstream returned %d: %s", resp.StatusCode, string(body))
	}

	var payload fixesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode fixes response: %w", err)
	}

	fixes := make(map[string]*model.TelemetryFix, len(payload.Fixes))
	for _, fix := range payload.Fixes {
		if fix.AssigneeID == "" {
			continue
		}
		fixes[fix.AssigneeID] = fix
	}
	return fixes, nil
}
