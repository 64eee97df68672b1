// Package client 封装上游数据源的 HTTP 访问
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fieldpulse/dispatch-monitor/internal/model"
	"github.com/fieldpulse/dispatch-monitor/pkg/logger"
)

// JobSource 工单数据源
type JobSource interface {
	// FetchJobs 拉取调度日在 [dateFrom, dateTo] 内的全部工单。
	// 任何错误 (含超时) 都视为瞬时失败，调用方应跳过本周期。
	FetchJobs(ctx context.Context, dateFrom, dateTo string) ([]*model.JobSnapshot, error)
}

// DispatchClient 工单 API 客户端
type DispatchClient struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// NewDispatchClient 创建工单 API 客户端
func NewDispatchClient(baseURL, apiToken string, timeout time.Duration) *DispatchClient {
	return &DispatchClient{
		baseURL:  baseURL,
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// jobPayload 上游工单的线上格式
type jobPayload struct {
	JobID            string            `json:"job_id"`
	ScheduledDate    string            `json:"scheduled_date"`
	Status           string            `json:"status"`
	AssigneeID       string            `json:"assignee_id"`
	SiteID           string            `json:"site_id"`
	JobValue         string            `json:"job_value"`
	ScheduledStartAt int64             `json:"scheduled_start_at"`
	StartedAt        *int64            `json:"started_at"`
	CompletedAt      *int64            `json:"completed_at"`
	Extra            map[string]string `json:"extra"`
}

type jobsResponse struct {
	Jobs []*jobPayload `json:"jobs"`
}

// FetchJobs 拉取调度日窗口内的工单
func (c *DispatchClient) FetchJobs(ctx context.Context, dateFrom, dateTo string) ([]*model.JobSnapshot, error) {
	endpoint := fmt.Sprintf("%s/api/v1/jobs?%s", c.baseURL, url.Values{
		"date_from": {dateFrom},
		"date_to":   {dateTo},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build jobs request: %w", err)
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jobs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch jobs: upstream returned %d: %s", resp.StatusCode, string(body))
	}

	var payload jobsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode jobs response: %w", err)
	}

	now := time.Now().UnixMilli()
	snapshots := make([]*model.JobSnapshot, 0, len(payload.Jobs))
	for _, p := range payload.Jobs {
		snap, err := p.toSnapshot(now)
		if err != nil {
			logger.Warn("skipping malformed job record",
				zap.String("job_id", p.JobID),
				zap.Error(err))
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

func (p *jobPayload) toSnapshot(fetchedAt int64) (*model.JobSnapshot, error) {
	if p.JobID == "" {
		return nil, fmt.Errorf("missing job_id")
	}
	if _, err := time.Parse(model.DateLayout, p.ScheduledDate); err != nil {
		return nil, fmt.Errorf("bad scheduled_date %q: %w", p.ScheduledDate, err)
	}

	value := decimal.Zero
	if p.JobValue != "" {
		v, err := decimal.NewFromString(p.JobValue)
		if err != nil {
			return nil, fmt.Errorf("bad job_value %q: %w", p.JobValue, err)
		}
		value = v
	}

	return &model.JobSnapshot{
		JobID:            p.JobID,
		ScheduledDate:    p.ScheduledDate,
		Status:           model.JobStatus(p.Status),
		AssigneeID:       p.AssigneeID,
		SiteID:           p.SiteID,
		JobValue:         value,
		ScheduledStartAt: p.ScheduledStartAt,
		StartedAt:        p.StartedAt,
		CompletedAt:      p.CompletedAt,
		Raw:              p.Extra,
		FetchedAt:        fetchedAt,
	}, nil
}
