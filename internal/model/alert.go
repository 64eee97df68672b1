package model

// Severity 告警级别
type Severity int8

const (
	SeverityLow      Severity = 1
	SeverityMedium   Severity = 2
	SeverityHigh     Severity = 3
	SeverityCritical Severity = 4
)

// String 返回告警级别的字符串表示
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Rank 返回排序权重，数字越大优先级越高
func (s Severity) Rank() int {
	return int(s)
}

// ParseSeverity 从字符串解析告警级别
func ParseSeverity(s string) (Severity, bool) {
	switch s {
	case "LOW":
		return SeverityLow, true
	case "MEDIUM":
		return SeverityMedium, true
	case "HIGH":
		return SeverityHigh, true
	case "CRITICAL":
		return SeverityCritical, true
	default:
		return 0, false
	}
}

// Alert 活跃告警
//
// 生命周期: active → (acknowledged / dismissed, 两个标志互不影响) → resolved。
// resolved 为终态，归档进历史后不再回到活跃集合。
type Alert struct {
	ID             string            `json:"id"`          // 告警ID (uuid)
	Fingerprint    string            `json:"fingerprint"` // md5(rule_id + job_id)，活跃集合内唯一
	RuleID         string            `json:"rule_id"`
	RuleName       string            `json:"rule_name"`
	Severity       Severity          `json:"severity"`
	Message        string            `json:"message"`
	JobID          string            `json:"job_id"`
	Context        map[string]string `json:"context,omitempty"`
	CreatedAt      int64             `json:"created_at"` // 毫秒
	Acknowledged   bool              `json:"acknowledged"`
	AcknowledgedAt *int64            `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string            `json:"acknowledged_by,omitempty"`
	Dismissed      bool              `json:"dismissed"`
	DismissedAt    *int64            `json:"dismissed_at,omitempty"`
	DismissedBy    string            `json:"dismissed_by,omitempty"`
	Resolved       bool              `json:"resolved"`
	ResolvedAt     *int64            `json:"resolved_at,omitempty"`
}

// Clone 返回告警的深拷贝，调用方可安全持有
func (a *Alert) Clone() *Alert {
	cp := *a
	if a.Context != nil {
		cp.Context = make(map[string]string, len(a.Context))
		for k, v := range a.Context {
			cp.Context[k] = v
		}
	}
	cp.AcknowledgedAt = clonePtr(a.AcknowledgedAt)
	cp.DismissedAt = clonePtr(a.DismissedAt)
	cp.ResolvedAt = clonePtr(a.ResolvedAt)
	return &cp
}

func clonePtr(v *int64) *int64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
