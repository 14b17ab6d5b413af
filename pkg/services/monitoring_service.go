package services

import (
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader リクエストIDを受け渡すヘッダー
const RequestIDHeader = "X-Request-ID"

// maxLogEntries 保持するログの上限
const maxLogEntries = 1000

// LogEntry は単一のリクエストログを表します。
type LogEntry struct {
	RequestID    string        `json:"request_id"`
	Timestamp    time.Time     `json:"timestamp"`
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	StatusCode   int           `json:"status_code"`
	ResponseTime time.Duration `json:"response_time"`
}

// MonitoringService はAPIのモニタリング機能を提供します。
type MonitoringService struct {
	logs []LogEntry
	mu   sync.RWMutex
	now  func() time.Time
}

// NewMonitoringService は新しいMonitoringServiceを生成します。
func NewMonitoringService() *MonitoringService {
	return &MonitoringService{
		logs: make([]LogEntry, 0),
		now:  time.Now,
	}
}

// LogRequest はリクエストを記録します。古いログは上限を超えると破棄されます。
func (s *MonitoringService) LogRequest(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	if over := len(s.logs) - maxLogEntries; over > 0 {
		s.logs = append(s.logs[:0:0], s.logs[over:]...)
	}
}

// Len returns the number of retained entries.
func (s *MonitoringService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs)
}

// LoggingMiddleware はリクエストIDを付与し、リクエスト情報を記録するGinミドルウェアです。
func (s *MonitoringService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.now()
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)

		// 次のミドルウェア/ハンドラを実行
		c.Next()

		// モニタリング自身のリクエストは記録しない
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api/monitoring") {
			return
		}

		entry := LogEntry{
			RequestID:    requestID,
			Timestamp:    start,
			Path:         path,
			Method:       c.Request.Method,
			StatusCode:   c.Writer.Status(),
			ResponseTime: time.Since(start),
		}
		if entry.StatusCode >= 500 {
			log.Printf("❌ [%s] %s %s -> %d (%v)", requestID, entry.Method, path, entry.StatusCode, entry.ResponseTime)
		}
		s.LogRequest(entry)
	}
}

// EndpointLatency エンドポイントごとの平均応答時間
type EndpointLatency struct {
	Endpoint      string `json:"endpoint"`
	AvgResponseMs int64  `json:"avg_response_ms"`
	RequestCount  int    `json:"request_count"`
}

// DashboardData はダッシュボードに表示するための集計済みデータです。
type DashboardData struct {
	PeriodHours      int               `json:"period_hours"`
	TotalRequests    int               `json:"total_requests"`
	Endpoints        map[string]int    `json:"endpoints"`
	StatusCodes      map[string]int    `json:"status_codes"`
	AvgResponseTimes []EndpointLatency `json:"avg_response_times"`
	RecentErrors     []LogEntry        `json:"recent_errors"`
}

// GetDashboardData は指定された期間のログを集計してダッシュボード用データを返します。
func (s *MonitoringService) GetDashboardData(periodHours int) DashboardData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	since := s.now().Add(-time.Duration(periodHours) * time.Hour)
	data := DashboardData{
		PeriodHours: periodHours,
		Endpoints:   make(map[string]int),
		StatusCodes: map[string]int{
			"2xx Success":      0,
			"4xx Client Error": 0,
			"5xx Server Error": 0,
		},
		AvgResponseTimes: make([]EndpointLatency, 0),
		RecentErrors:     make([]LogEntry, 0),
	}

	responseTimeSum := make(map[string]time.Duration)
	for _, entry := range s.logs {
		if !entry.Timestamp.After(since) {
			continue
		}
		data.TotalRequests++
		data.Endpoints[entry.Path]++
		responseTimeSum[entry.Path] += entry.ResponseTime

		switch {
		case entry.StatusCode >= 500:
			data.StatusCodes["5xx Server Error"]++
		case entry.StatusCode >= 400:
			data.StatusCodes["4xx Client Error"]++
		case entry.StatusCode >= 200 && entry.StatusCode < 300:
			data.StatusCodes["2xx Success"]++
		}
	}

	for path, total := range responseTimeSum {
		count := data.Endpoints[path]
		data.AvgResponseTimes = append(data.AvgResponseTimes, EndpointLatency{
			Endpoint:      path,
			AvgResponseMs: total.Milliseconds() / int64(count),
			RequestCount:  count,
		})
	}
	sort.Slice(data.AvgResponseTimes, func(i, j int) bool {
		return data.AvgResponseTimes[i].Endpoint < data.AvgResponseTimes[j].Endpoint
	})

	// 直近の5xxエラー（新しい順、最大10件）
	for i := len(s.logs) - 1; i >= 0 && len(data.RecentErrors) < 10; i-- {
		if s.logs[i].Timestamp.After(since) && s.logs[i].StatusCode >= 500 {
			data.RecentErrors = append(data.RecentErrors, s.logs[i])
		}
	}

	return data
}
