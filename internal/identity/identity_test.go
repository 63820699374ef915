package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tgienger/taskdemo/internal/db"
	"github.com/tgienger/taskdemo/internal/logging"
	"github.com/tgienger/taskdemo/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestResolver(t *testing.T) (*Resolver, *db.DB) {
	t.Helper()

	database, err := db.Open(db.Options{
		Path:        filepath.Join(t.TempDir(), "identity.db"),
		BusyTimeout: 10 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	r := NewResolver(database, logging.Discard(), nil)
	r.Now = func() time.Time { return time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC) }
	return r, database
}

// edgeRouter echoes the forwarded header seen by downstream handlers
func edgeRouter(cfg CookieConfig) *gin.Engine {
	router := gin.New()
	router.Use(Edge(cfg))
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.Request.Header.Get(cfg.HeaderName))
	})
	return router
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()

	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %s not set", name)
	return nil
}

func TestEdge_MintsIdentifier(t *testing.T) {
	cfg := DefaultCookieConfig()
	w := httptest.NewRecorder()
	edgeRouter(cfg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	cookie := sessionCookie(t, w, DefaultCookieName)
	assert.NotEmpty(t, cookie.Value)
	assert.Equal(t, cookie.Value, w.Body.String(), "downstream sees the minted id")
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, int(DefaultMaxAge.Seconds()), cookie.MaxAge)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.False(t, cookie.HttpOnly)
}

func TestEdge_KeepsCookieAndOverridesHeader(t *testing.T) {
	cfg := DefaultCookieConfig()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "existing-id"})
	req.Header.Set(DefaultHeaderName, "spoofed-id")

	w := httptest.NewRecorder()
	edgeRouter(cfg).ServeHTTP(w, req)

	assert.Equal(t, "existing-id", w.Body.String())
	assert.Equal(t, "existing-id", sessionCookie(t, w, DefaultCookieName).Value, "cookie is refreshed")
}

func TestEdge_ReplacesMalformedCookie(t *testing.T) {
	cfg := DefaultCookieConfig()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "bad;value<script>"})

	w := httptest.NewRecorder()
	edgeRouter(cfg).ServeHTTP(w, req)

	minted := w.Body.String()
	assert.NotEqual(t, "bad;value<script>", minted)
	assert.True(t, validID(minted))
}

func TestFromRequest(t *testing.T) {
	cfg := DefaultCookieConfig()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "from-cookie"})
	req.Header.Set(DefaultHeaderName, "from-header")

	id := FromRequest(req, cfg)
	assert.Equal(t, Identity{Cookie: "from-cookie", Header: "from-header"}, id)
	assert.Equal(t, "from-cookie", id.ID())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(DefaultHeaderName, "from-header")
	assert.Equal(t, "from-header", FromRequest(req, cfg).ID())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(DefaultHeaderName, "has spaces")
	assert.Empty(t, FromRequest(req, cfg).ID())
}

func TestValidID(t *testing.T) {
	assert.True(t, validID("0b7c1a2e-5d0f-4f44-9a55-3c9b1b0f7a10"))
	assert.True(t, validID("abc_DEF-123"))
	assert.False(t, validID(""))
	assert.False(t, validID("semi;colon"))
	assert.False(t, validID(string(make([]byte, maxIDLength+1))))
}

func TestGetOrCreate_NewSessionIsSeeded(t *testing.T) {
	r, database := newTestResolver(t)
	ctx := context.Background()

	s, err := r.GetOrCreate(ctx, Identity{})
	require.NoError(t, err)
	require.NotNil(t, s.SeededAt)
	assert.Zero(t, s.TaskCreateCount, "seeding is not metered")
	assert.Zero(t, s.TagCreateCount)

	tags, err := database.ListTags(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, tags, len(DefaultTags))

	tasks, err := database.ListTasks(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, tasks, len(DefaultTasks))

	byTitle := map[string]models.Task{}
	for _, task := range tasks {
		byTitle[task.Title] = task
	}
	report := byTitle["Submit expense report"]
	require.NotNil(t, report.DueDate)
	assert.Equal(t, r.Now().AddDate(0, 0, -2).Format("2006-01-02"), report.DueDate.UTC().Format("2006-01-02"))
	assert.Equal(t, models.StatusOverdue, report.Status)
	assert.Len(t, byTitle["Book quarterly sync"].Tags, 2)
}

func TestGetOrCreate_KnownIdentifierIsIdempotent(t *testing.T) {
	r, database := newTestResolver(t)
	ctx := context.Background()

	first, err := r.GetOrCreate(ctx, Identity{Header: "visitor-42"})
	require.NoError(t, err)
	assert.Equal(t, "visitor-42", first.ID)

	second, err := r.GetOrCreate(ctx, Identity{Cookie: "visitor-42"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	count, err := database.CountTasks(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, len(DefaultTasks), count, "seeded once")
}

func TestGetOrCreate_DoesNotReseedAfterDeletes(t *testing.T) {
	r, database := newTestResolver(t)
	ctx := context.Background()

	s, err := r.GetOrCreate(ctx, Identity{Cookie: "tidy-visitor"})
	require.NoError(t, err)

	tasks, err := database.ListTasks(ctx, s.ID)
	require.NoError(t, err)
	for _, task := range tasks {
		_, err := database.DeleteTask(ctx, s.ID, task.ID)
		require.NoError(t, err)
	}

	_, err = r.GetOrCreate(ctx, Identity{Cookie: "tidy-visitor"})
	require.NoError(t, err)

	count, err := database.CountTasks(ctx, s.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGetOrCreate_ConcurrentFirstRequests(t *testing.T) {
	r, database := newTestResolver(t)

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.GetOrCreate(context.Background(), Identity{Header: "fresh-tab"})
			errs[i] = err
			if s != nil {
				ids[i] = s.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "fresh-tab", ids[i])
	}

	ctx := context.Background()
	sessions, err := database.SessionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sessions)

	tasks, err := database.CountTasks(ctx, "fresh-tab")
	require.NoError(t, err)
	assert.Equal(t, len(DefaultTasks), tasks)

	tags, err := database.CountTags(ctx, "fresh-tab")
	require.NoError(t, err)
	assert.Equal(t, len(DefaultTags), tags)
}

func TestGetOrCreate_RequestCache(t *testing.T) {
	r, database := newTestResolver(t)
	ctx := WithRequestCache(context.Background())

	first, err := r.GetOrCreate(ctx, Identity{})
	require.NoError(t, err)

	// Within one request the first resolution wins, so no second session is minted
	second, err := r.GetOrCreate(ctx, Identity{})
	require.NoError(t, err)
	assert.Same(t, first, second)

	count, err := database.SessionCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Without the cache every anonymous call mints a session
	_, err = r.GetOrCreate(context.Background(), Identity{})
	require.NoError(t, err)
	count, err = database.SessionCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
