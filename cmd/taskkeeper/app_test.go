package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/digiflow/taskkeeper/internal/api"
	"github.com/digiflow/taskkeeper/internal/config"
	"github.com/digiflow/taskkeeper/internal/platform/logger"
	"github.com/digiflow/taskkeeper/internal/platform/sqlite"
	"github.com/digiflow/taskkeeper/internal/store"
	"github.com/digiflow/taskkeeper/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "thisisasecretkeythatis32charslong!!"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:            8080,
			LogLevel:        "debug",
			LogFormat:       "json",
			ShutdownTimeout: 5 * time.Second,
		},
		Auth: config.AuthConfig{
			JWTSecret:            testSecret,
			TokenLifetimeMinutes: 60,
		},
		Housekeeping: config.HousekeepingConfig{
			Interval:          time.Hour,
			FinishedRetention: time.Hour,
			MaxFinished:       3,
		},
		Pool:    config.PoolConfig{Size: 2, Nonblocking: true},
		History: config.HistoryConfig{Driver: config.HistoryDriverNone},
		Names:   map[string]string{task.KindEmptyTask: "Empty task"},
	}
}

func newTestApplication(t *testing.T, cfg *config.Config) *application {
	t.Helper()
	log, _ := logger.GetTestLogger(t)
	app, err := newApplication(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(app.cleanup)
	return app
}

func TestOpenHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("none", func(t *testing.T) {
		s, err := openHistory(ctx, config.HistoryConfig{Driver: config.HistoryDriverNone})
		require.NoError(t, err)
		assert.IsType(t, store.NopHistoryStore{}, s)
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := openHistory(ctx, config.HistoryConfig{
			Driver: config.HistoryDriverSQLite,
			DSN:    filepath.Join(t.TempDir(), "history.db"),
		})
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &sqlite.HistoryStore{}, s)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := openHistory(ctx, config.HistoryConfig{Driver: "mongo"})
		assert.ErrorContains(t, err, "unknown history driver")
	})
}

func TestNewApplication_RejectsShortSecret(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Auth.JWTSecret = "short"

	log, _ := logger.GetTestLogger(t)
	app, err := newApplication(context.Background(), cfg, log)
	assert.Error(t, err)
	assert.Nil(t, app)
}

func TestRouter(t *testing.T) {
	t.Parallel()
	app := newTestApplication(t, testConfig())
	router := app.setupRouter()

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp api.HealthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "ok", resp.Status)
		assert.False(t, resp.History)
	})

	t.Run("launch requires a token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/tasks/empty", strings.NewReader(`{"steps":1}`))
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("launch with token", func(t *testing.T) {
		token, err := app.jwtService.GenerateToken(context.Background(), "ops")
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/tasks/empty", strings.NewReader(`{"steps":2}`))
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var resp api.TaskResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, task.KindEmptyTask, resp.Kind)
		assert.True(t, strings.HasPrefix(resp.Name, "Empty task"))
		assert.Equal(t, "/api/tasks/"+resp.ID.String(), rec.Header().Get("Location"))
	})
}

func TestCleanup_RecordsTerminatedTasks(t *testing.T) {
	t.Parallel()

	for _, poolSize := range []int{0, 2} {
		t.Run(fmt.Sprintf("pool size %d", poolSize), func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			cfg.Pool.Size = poolSize
			cfg.History = config.HistoryConfig{
				Driver: config.HistoryDriverSQLite,
				DSN:    filepath.Join(t.TempDir(), "history.db"),
			}

			log, _ := logger.GetTestLogger(t)
			app, err := newApplication(context.Background(), cfg, log)
			require.NoError(t, err)

			// The body takes a while to wind down after the stop request
			body := task.NewMockBody("ExportTask", func(ctx context.Context, r task.Reporter) error {
				<-ctx.Done()
				time.Sleep(100 * time.Millisecond)
				return nil
			})
			snap, err := app.taskService.Launch(context.Background(), body)
			require.NoError(t, err)

			app.cleanup()

			history, err := openHistory(context.Background(), cfg.History)
			require.NoError(t, err)
			defer history.Close()

			record, err := history.GetRecord(context.Background(), snap.ID)
			require.NoError(t, err)
			assert.Equal(t, task.StateFinished, record.State)
			assert.Equal(t, task.BehaviourDeleteImmediately, record.Behaviour)
			assert.Equal(t, "ExportTask", record.Kind)
		})
	}
}
