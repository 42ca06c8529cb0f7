// file: internal/transport/http/router/router_test.go

package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ModWarden/internal/adapter/snapstore"
	"ModWarden/internal/mwmiddleware"
	"ModWarden/internal/rulestore"
	"ModWarden/internal/service/analyzer"
	"ModWarden/internal/transport/http/middleware"

	"github.com/gin-gonic/gin"
)

const testMasterlist = `{
  "game_id": "skyrim",
  "catalog": ["childmod.esp", "parentmod.esm", "base.esp", "patch.esp"],
  "rules": [
    {"id": "b1", "kind": "requires", "subject_pattern": "childmod.esp", "object_pattern": "parentmod.esm"},
    {"id": "b2", "kind": "load_after", "subject_pattern": "patch.esp", "object_pattern": "base.esp"}
  ]
}`

func testServer(t *testing.T) (http.Handler, *middleware.Authenticator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "skyrim.json"), []byte(testMasterlist), 0o644); err != nil {
		t.Fatalf("写入测试主列表失败: %v", err)
	}
	blobs, err := snapstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("创建快照存储失败: %v", err)
	}
	holder := rulestore.NewHolder()
	store := rulestore.NewStore(holder, blobs, nil, rulestore.DefaultAdmissionPolicy(), dir)
	if err := store.Bootstrap(context.Background()); err != nil {
		t.Fatalf("启动构建失败: %v", err)
	}

	auth := middleware.NewAuthenticator("test-secret", "ModWarden")
	handler := New(Dependencies{
		Analyzer: analyzer.New(holder, analyzer.DefaultOptions()),
		Holder:   holder,
		Store:    store,
		Auth:     auth,
		Limiter:  mwmiddleware.NewRateLimiter(1000, 1000, 1000, 1000),
	})
	return handler, auth
}

func doJSON(t *testing.T, handler http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestAnalyzeEndpoint(t *testing.T) {
	handler, _ := testServer(t)

	body := `{"game_id": "skyrim", "raw_list": "*childmod.esp\n*patch.esp\n*base.esp"}`
	w := doJSON(t, handler, http.MethodPost, "/api/v1/analyze", body, "")
	if w.Code != http.StatusOK {
		t.Fatalf("分析接口应返回 200: %d %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			Conflicts     []map[string]any `json:"conflicts"`
			ProposedOrder []string         `json:"proposed_order"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("响应解析失败: %v", err)
	}
	if len(resp.Data.Conflicts) == 0 {
		t.Error("缺失前置应出现在冲突列表中")
	}
	if len(resp.Data.ProposedOrder) != 3 {
		t.Errorf("建议顺序应覆盖全部启用插件: %v", resp.Data.ProposedOrder)
	}
}

func TestAnalyzeEndpoint_BadRequest(t *testing.T) {
	handler, _ := testServer(t)
	w := doJSON(t, handler, http.MethodPost, "/api/v1/analyze", `{"raw_list": "a.esp"}`, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("缺少 game_id 应返回 400: %d", w.Code)
	}
}

func TestAnalyzeEndpoint_UnknownGame(t *testing.T) {
	handler, _ := testServer(t)
	w := doJSON(t, handler, http.MethodPost, "/api/v1/analyze",
		`{"game_id": "nope", "raw_list": "a.esp"}`, "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("无规则集的游戏应返回 503: %d %s", w.Code, w.Body.String())
	}
}

func TestMetadataEndpoints(t *testing.T) {
	handler, _ := testServer(t)

	w := doJSON(t, handler, http.MethodGet, "/api/v1/games", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "skyrim") {
		t.Errorf("游戏列表接口异常: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, handler, http.MethodGet, "/api/v1/rulesets/skyrim", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "version_tag") {
		t.Errorf("规则集元数据接口异常: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, handler, http.MethodGet, "/api/v1/catalog/skyrim", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "childmod.esp") {
		t.Errorf("目录接口异常: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, handler, http.MethodGet, "/api/v1/rulesets/nope", "", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("未知游戏的元数据查询应返回 503: %d", w.Code)
	}
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	handler, auth := testServer(t)

	w := doJSON(t, handler, http.MethodPost, "/api/v1/admin/rulesets/skyrim/rebuild", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("无令牌应返回 401: %d", w.Code)
	}

	viewer, err := auth.GenToken("ops", "viewer")
	if err != nil {
		t.Fatalf("签发令牌失败: %v", err)
	}
	w = doJSON(t, handler, http.MethodPost, "/api/v1/admin/rulesets/skyrim/rebuild", "", viewer)
	if w.Code != http.StatusForbidden {
		t.Fatalf("非管理员角色应返回 403: %d", w.Code)
	}

	admin, err := auth.GenToken("ops", "admin")
	if err != nil {
		t.Fatalf("签发令牌失败: %v", err)
	}
	w = doJSON(t, handler, http.MethodPost, "/api/v1/admin/rulesets/skyrim/rebuild", "", admin)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "version_tag") {
		t.Fatalf("管理员重建应成功: %d %s", w.Code, w.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	handler, _ := testServer(t)
	w := doJSON(t, handler, http.MethodGet, "/healthz", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("健康检查应返回 200: %d", w.Code)
	}
}
