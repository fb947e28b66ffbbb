package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kpi-hub-api/internal/service"
	"github.com/noah-isme/kpi-hub-api/pkg/storage"
)

func newDownloadFixture(t *testing.T) (*ReportHandler, *storage.SignedURLSigner, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := service.NewReportService(nil, nil, nil, store, signer, nil, nil, nil)
	return NewReportHandler(svc, nil), signer, store
}

func TestReportDownloadStreamsFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, signer, store := newDownloadFixture(t)

	relPath, err := store.Save("scorecard_c1.csv", []byte("Employee,KPI,Score\nJane,Deals,5\n"))
	require.NoError(t, err)
	token, _, err := signer.Generate("report", relPath)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/files/reports?token="+token, nil)

	handler.Download(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "scorecard_c1.csv")
	assert.Contains(t, rec.Body.String(), "Jane,Deals,5")
}

func TestReportDownloadRejectsBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _, _ := newDownloadFixture(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/files/reports?token=not.a.real.token", nil)

	handler.Download(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReportDownloadRequiresToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler, _, _ := newDownloadFixture(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/files/reports", nil)

	handler.Download(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
