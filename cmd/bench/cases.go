// README: Benchmark test cases; includes HTTP, DB, Redis, and performance checks.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name  string
	Focus string
	Run   func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

// nextMonday returns the next Monday as YYYY-MM-DD for dated requests.
func nextMonday() string {
	d := time.Now().UTC()
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, 1)
	}
	return d.Format("2006-01-02")
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	offerBody := map[string]any{
		"origin":       "Hsinchu",
		"destination":  "Taipei",
		"weekdays":     []string{"monday", "wednesday"},
		"depart_time":  "08:00",
		"auto_approve": true,
	}
	requestBody := map[string]any{
		"origin":      "Hsinchu",
		"destination": "Taipei",
		"travel_date": nextMonday(),
		"depart_time": "08:15",
		"flexibility": "flexible",
	}

	return []TestCase{
		{
			Name:  "Env: Postgres connect",
			Focus: "DB 連線可用",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Env: Redis connect",
			Focus: "Redis 連線可用",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "FAIL", Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Migration: apply (optional)",
			Focus: "可選套用 migration SQL",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: "SKIP", Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, s := range splitSQL(string(sql)) {
					if _, err := r.db.Exec(ctx, s); err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Migration: tables exist",
			Focus: "依 migrations/0001_init.sql 檢查表是否存在",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
					if !exists {
						return Result{Status: "FAIL", Note: "missing table: " + t}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "API: server reachable",
			Focus: "API 可回應請求",
			Run: func(ctx context.Context, r *Runner) Result {
				start := time.Now()
				resp, err := r.httpc.Get(base + "/health")
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				_ = resp.Body.Close()
				return Result{Status: "PASS", Latency: time.Since(start), Note: fmt.Sprintf("status=%d", resp.StatusCode)}
			},
		},
		{
			Name:  "Auth: missing user id -> 401",
			Focus: "未帶 X-User-ID 應拒絕",
			Run: func(ctx context.Context, r *Runner) Result {
				req, _ := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/offers", strings.NewReader("{}"))
				req.Header.Set("Content-Type", "application/json")
				resp, err := r.httpc.Do(req)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				if resp.StatusCode == http.StatusUnauthorized {
					return Result{Status: "PASS"}
				}
				return Result{Status: "FAIL", Note: fmt.Sprintf("status=%d", resp.StatusCode)}
			},
		},

		// Offer flow
		r.httpCase("Offer: create (valid)", base+"/api/offers", "driver1", offerBody, []int{201}, []int{409}),
		r.httpCase("Offer: create duplicate -> 409", base+"/api/offers", "driver1", offerBody, []int{409}, nil),
		r.httpCase("Offer: missing fields -> 400", base+"/api/offers", "driver1", map[string]any{}, []int{400}, nil),
		r.httpCase("Offer: both schedule forms -> 400", base+"/api/offers", "driver1", map[string]any{
			"origin":      "Hsinchu",
			"destination": "Taipei",
			"weekdays":    []string{"monday"},
			"travel_date": nextMonday(),
			"depart_time": "08:00",
		}, []int{400}, nil),

		// Request flow
		r.httpCase("Request: create (valid)", base+"/api/requests", "rider1", requestBody, []int{201}, []int{409}),
		r.httpCase("Request: create duplicate -> 409", base+"/api/requests", "rider1", requestBody, []int{409}, nil),
		r.httpCase("Request: bad time -> 400", base+"/api/requests", "rider1", map[string]any{
			"origin":      "Hsinchu",
			"destination": "Taipei",
			"travel_date": nextMonday(),
			"depart_time": "late morning",
		}, []int{400}, nil),

		// Cross-kind conflict: the driver who posted the recurring offer now
		// requests the same trip.
		r.httpCase("Conflict: opposite kind -> 409 with payload", base+"/api/requests", "driver1", requestBody, []int{409}, nil),

		manualCase("Route: background cache fills", "需查 route_caches 表 pending 轉為 false"),
		manualCase("Route: origin edit invalidates cache", "PATCH origin 後需確認 pending=true 且重新計算"),
		manualCase("Notify: match published to Redis", "需訂閱 notify:user:* 頻道觀察"),
		manualCase("Notify: announce dedupe", "重複編輯不應重發，需查 match:announced:* keys"),

		// Concurrency
		{
			Name:  "Concurrency: duplicate create race",
			Focus: "同筆 offer 並發建立僅一筆成功",
			Run: func(ctx context.Context, r *Runner) Result {
				return concurrentCreate(ctx, r, base+"/api/offers", "racer1", map[string]any{
					"origin":      "Zhubei",
					"destination": "Taipei",
					"weekdays":    []string{"friday"},
					"depart_time": "07:30",
				})
			},
		},

		// Performance
		{
			Name:  "Perf: match search throughput",
			Focus: "建立 request 觸發配對的吞吐",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, base+"/api/requests", "perfrider", map[string]any{
					"origin":      "Hsinchu",
					"destination": "Kaohsiung",
					"travel_date": nextMonday(),
					"depart_time": "09:00",
				})
			},
		},
	}
}

func (r *Runner) httpCase(name, url, uid string, body any, okStatuses, pendingStatuses []int) TestCase {
	return TestCase{
		Name:  name,
		Focus: "HTTP API",
		Run: func(ctx context.Context, r *Runner) Result {
			start := time.Now()
			status, err := r.post(ctx, url, uid, body)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			latency := time.Since(start)
			if contains(okStatuses, status) {
				return Result{Status: "PASS", Latency: latency, Note: fmt.Sprintf("status=%d", status)}
			}
			if contains(pendingStatuses, status) {
				return Result{Status: "PENDING", Latency: latency, Note: fmt.Sprintf("status=%d", status)}
			}
			return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d", status)}
		},
	}
}

func (r *Runner) post(ctx context.Context, url, uid string, body any) (int, error) {
	b, _ := json.Marshal(body)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(b)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", uid)
	if r.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.AuthToken)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, nil
}

func manualCase(name, note string) TestCase {
	return TestCase{
		Name:  name,
		Focus: "Manual",
		Run: func(ctx context.Context, r *Runner) Result {
			return Result{Status: "SKIP", Note: note}
		},
	}
}

func concurrentCreate(ctx context.Context, r *Runner, url, uid string, body any) Result {
	wg := sync.WaitGroup{}
	succ := 0
	mu := sync.Mutex{}

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, err := r.post(ctx, url, uid, body)
			if err != nil {
				return
			}
			mu.Lock()
			if status >= 200 && status < 300 {
				succ++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if succ <= 1 {
		return Result{Status: "PASS", Note: fmt.Sprintf("success=%d", succ)}
	}
	return Result{Status: "FAIL", Note: fmt.Sprintf("success=%d", succ)}
}

func perfLoad(ctx context.Context, r *Runner, url, uidPrefix string, payload map[string]any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count int64
	var errCount int64
	var mu sync.Mutex
	wg := sync.WaitGroup{}

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			n := 0
			for time.Now().Before(end) {
				body := make(map[string]any, len(payload)+1)
				for k, v := range payload {
					body[k] = v
				}
				// Unique time per iteration keeps the duplicate check out of the way.
				body["depart_time"] = fmt.Sprintf("%02d:%02d", 6+worker%12, n%60)
				n++
				uid := fmt.Sprintf("%s%d", uidPrefix, worker)
				if _, err := r.post(ctx, url, uid, body); err != nil {
					mu.Lock()
					errCount++
					mu.Unlock()
					continue
				}
				mu.Lock()
				count++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: "FAIL", Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func contains(list []int, v int) bool {
	for _, i := range list {
		if i == v {
			return true
		}
	}
	return false
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	cleaned := strings.Join(filtered, "\n")
	parts := strings.Split(cleaned, ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
