package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"strconv"
	"time"

	router "github.com/goliatone/go-router"

	"github.com/fakturenn/invoicebridge/internal/core"
)

// testContext is a minimal router.Context double, grounded on the
// reference stack's own adapters/router test fake: only the methods
// internal/httpapi's handlers actually call carry real behavior, the
// rest return zero values.
type testContext struct {
	method   string
	body     []byte
	query    map[string]string
	headers  map[string]string
	params   map[string]string
	locals   map[any]any
	ctx      context.Context
	recorder *httptest.ResponseRecorder
	written  bool
	status   int
}

func newTestContext(method string, params, query map[string]string, body []byte) *testContext {
	if params == nil {
		params = make(map[string]string)
	}
	if query == nil {
		query = make(map[string]string)
	}
	return &testContext{
		method:   method,
		body:     body,
		query:    query,
		headers:  make(map[string]string),
		params:   params,
		locals:   make(map[any]any),
		ctx:      context.Background(),
		recorder: httptest.NewRecorder(),
	}
}

func (c *testContext) Bind(v any) error {
	if len(c.body) == 0 {
		return nil
	}
	return json.Unmarshal(c.body, v)
}

func (c *testContext) Context() context.Context       { return c.ctx }
func (c *testContext) SetContext(ctx context.Context)  { c.ctx = ctx }
func (c *testContext) Next() error                     { return nil }
func (c *testContext) RouteName() string               { return "" }
func (c *testContext) RouteParams() map[string]string  { return c.params }
func (c *testContext) Method() string                  { return c.method }
func (c *testContext) Path() string                    { return "" }

func (c *testContext) Param(name string, defaultValue ...string) string {
	if val, ok := c.params[name]; ok {
		return val
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (c *testContext) ParamsInt(key string, defaultValue int) int {
	val := c.Param(key)
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func (c *testContext) Query(name string, defaultValue ...string) string {
	if val, ok := c.query[name]; ok {
		return val
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (c *testContext) QueryValues(name string) []string {
	if val, ok := c.query[name]; ok {
		return []string{val}
	}
	return nil
}
func (c *testContext) QueryInt(name string, defaultValue int) int {
	val := c.Query(name)
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return parsed
}
func (c *testContext) Queries() map[string]string { return c.query }
func (c *testContext) Body() []byte                { return c.body }

func (c *testContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		c.locals[key] = value[0]
		return value[0]
	}
	return c.locals[key]
}
func (c *testContext) LocalsMerge(key any, value map[string]any) map[string]any {
	merged, _ := c.locals[key].(map[string]any)
	if merged == nil {
		merged = map[string]any{}
	}
	for k, v := range value {
		merged[k] = v
	}
	c.locals[key] = merged
	return merged
}

func (c *testContext) Render(name string, bind any, layouts ...string) error { return nil }
func (c *testContext) Cookie(cookie *router.Cookie)                         {}
func (c *testContext) Cookies(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}
func (c *testContext) CookieParser(out any) error { return nil }
func (c *testContext) Redirect(location string, status ...int) error {
	return nil
}
func (c *testContext) RedirectToRoute(routeName string, params router.ViewContext, status ...int) error {
	return nil
}
func (c *testContext) RedirectBack(fallback string, status ...int) error { return nil }

func (c *testContext) Header(name string) string { return c.headers[name] }
func (c *testContext) Referer() string           { return "" }
func (c *testContext) OriginalURL() string       { return "" }
func (c *testContext) FormFile(key string) (*multipart.FileHeader, error) { return nil, nil }
func (c *testContext) FormValue(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}
func (c *testContext) IP() string { return "127.0.0.1" }

func (c *testContext) Status(code int) router.Context {
	c.writeHeader(code)
	return c
}
func (c *testContext) Send(body []byte) error {
	if !c.written {
		c.writeHeader(200)
	}
	_, err := c.recorder.Write(body)
	return err
}
func (c *testContext) SendString(body string) error { return c.Send([]byte(body)) }
func (c *testContext) SendStatus(code int) error {
	c.writeHeader(code)
	return nil
}
func (c *testContext) JSON(code int, v any) error {
	c.recorder.Header().Set("Content-Type", "application/json")
	c.writeHeader(code)
	return json.NewEncoder(c.recorder).Encode(v)
}
func (c *testContext) SendStream(r io.Reader) error { return nil }
func (c *testContext) NoContent(code int) error {
	c.writeHeader(code)
	return nil
}
func (c *testContext) SetHeader(key, val string) router.Context {
	c.recorder.Header().Set(key, val)
	return c
}
func (c *testContext) Set(key string, value any) { c.locals[key] = value }
func (c *testContext) Get(key string, def any) any {
	if val, ok := c.locals[key]; ok {
		return val
	}
	return def
}
func (c *testContext) GetString(key string, def string) string {
	if val, ok := c.locals[key].(string); ok {
		return val
	}
	return def
}
func (c *testContext) GetInt(key string, def int) int {
	if val, ok := c.locals[key].(int); ok {
		return val
	}
	return def
}
func (c *testContext) GetBool(key string, def bool) bool {
	if val, ok := c.locals[key].(bool); ok {
		return val
	}
	return def
}

func (c *testContext) writeHeader(code int) {
	if c.written {
		c.status = code
		return
	}
	c.written = true
	c.status = code
	c.recorder.WriteHeader(code)
}

// fakeStore is a minimal in-memory core.Store double scoped to what
// this package's handlers touch.
type fakeStore struct {
	jobs     map[int64]core.Job
	triggers []int64
	cancels  []int64
	exports  []core.ExportHistory
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[int64]core.Job)}
}

func (s *fakeStore) GetAutomation(ctx context.Context, scope core.Scope, automationID int64) (core.Automation, error) {
	return core.Automation{ID: automationID, Active: true}, nil
}
func (s *fakeStore) ActiveAutomations(ctx context.Context) ([]core.Automation, error) { return nil, nil }
func (s *fakeStore) ActiveSources(ctx context.Context, automationID int64) ([]core.Source, error) {
	return nil, nil
}
func (s *fakeStore) ActiveExports(ctx context.Context, automationID int64) ([]core.Export, error) {
	return nil, nil
}
func (s *fakeStore) Mappings(ctx context.Context, automationID int64) ([]core.SourceExportMapping, error) {
	return nil, nil
}
func (s *fakeStore) CreateJob(ctx context.Context, automationID int64, fromDate *time.Time, maxResults int) (core.Job, error) {
	s.triggers = append(s.triggers, automationID)
	job := core.Job{ID: int64(len(s.jobs) + 1), AutomationID: automationID, Status: core.JobPending}
	s.jobs[job.ID] = job
	return job, nil
}
func (s *fakeStore) ClaimJob(ctx context.Context, jobID int64, startedAt time.Time) (bool, error) {
	return true, nil
}
func (s *fakeStore) JobStatus(ctx context.Context, jobID int64) (core.JobStatus, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return "", core.NewError(core.KindNotFound, "job not found", nil)
	}
	return job.Status, nil
}
func (s *fakeStore) FinishJob(ctx context.Context, jobID int64, status core.JobStatus, errMsg string, stats core.JobStats, completedAt time.Time) error {
	return nil
}
func (s *fakeStore) RequestCancellation(ctx context.Context, jobID int64) (bool, error) {
	if _, ok := s.jobs[jobID]; !ok {
		return false, core.NewError(core.KindNotFound, "job not found", nil)
	}
	s.cancels = append(s.cancels, jobID)
	return true, nil
}
func (s *fakeStore) GetJob(ctx context.Context, jobID int64) (core.Job, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return core.Job{}, core.NewError(core.KindNotFound, "job not found", nil)
	}
	return job, nil
}
func (s *fakeStore) InsertExportHistory(ctx context.Context, row core.ExportHistory) error {
	s.exports = append(s.exports, row)
	return nil
}
func (s *fakeStore) InsertAuditLog(ctx context.Context, row core.AuditLog) error { return nil }
func (s *fakeStore) ExportHistoryRange(ctx context.Context, from, to time.Time) ([]core.ExportHistory, error) {
	var out []core.ExportHistory
	for _, row := range s.exports {
		if !row.ExportedAt.Before(from) && row.ExportedAt.Before(to) {
			out = append(out, row)
		}
	}
	return out, nil
}
func (s *fakeStore) CheckIdempotency(ctx context.Context, signature string) (int64, bool, error) {
	return 0, false, nil
}
func (s *fakeStore) StoreIdempotency(ctx context.Context, signature string, jobID int64, ttl time.Duration) error {
	return nil
}

// noopEventBus satisfies core.EventBus without publishing anywhere;
// these handler tests only care that a job row lands in the store.
type noopEventBus struct{}

func (noopEventBus) PublishJobStarted(ctx context.Context, evt core.JobStartedEvent) error {
	return nil
}
func (noopEventBus) PublishJobCompleted(ctx context.Context, evt core.JobCompletedEvent) error {
	return nil
}
func (noopEventBus) PublishJobFailed(ctx context.Context, evt core.JobFailedEvent) error {
	return nil
}
