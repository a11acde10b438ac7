package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/domain"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/handler"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/service"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/errors"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/httputil"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/logger"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/testutil"
)

type stubGuard struct {
	err error
}

func (s *stubGuard) Authorize(ctx context.Context, operation, resourceTenantID string) error {
	return s.err
}

type stubResolver struct {
	decision domain.Decision
	perms    []string
	err      error
}

func (s *stubResolver) Resolve(ctx context.Context, userID, nodeID, permission string) (domain.Decision, error) {
	return s.decision, s.err
}

func (s *stubResolver) EffectivePermissions(ctx context.Context, userID, nodeID string) ([]string, error) {
	return s.perms, s.err
}

func newAccessHandler(guard *stubGuard, resolver *stubResolver) *handler.AccessHandler {
	svc := service.NewAccessService(guard, resolver, testutil.NewMockRecorder(), logger.Nop())
	return handler.NewAccessHandler(svc, logger.Nop())
}

func doRequest(h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(testutil.TenantContext())
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestAuthorizeEndpointAllows(t *testing.T) {
	h := newAccessHandler(&stubGuard{}, &stubResolver{})

	body := `{"operation":"orders.read","resource_tenant_id":"` + testutil.TestTenantID + `"}`
	rec := doRequest(h.Authorize, http.MethodPost, "/api/v1/authorize", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
}

func TestAuthorizeEndpointDeniesWithOpaqueBody(t *testing.T) {
	h := newAccessHandler(&stubGuard{err: errors.TenantMismatch("orders.read")}, &stubResolver{})

	body := `{"operation":"orders.read","resource_tenant_id":"` + testutil.OtherTenantID + `"}`
	rec := doRequest(h.Authorize, http.MethodPost, "/api/v1/authorize", body)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "access denied", resp.Error.Message)
}

func TestAuthorizeEndpointValidatesBody(t *testing.T) {
	h := newAccessHandler(&stubGuard{}, &stubResolver{})

	tests := []struct {
		name string
		body string
	}{
		{"missing operation", `{"resource_tenant_id":"` + testutil.TestTenantID + `"}`},
		{"non uuid tenant", `{"operation":"orders.read","resource_tenant_id":"acme"}`},
		{"malformed json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(h.Authorize, http.MethodPost, "/api/v1/authorize", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestResolveEndpoint(t *testing.T) {
	h := newAccessHandler(&stubGuard{}, &stubResolver{decision: domain.DecisionAllowed})

	body := `{"user_id":"` + testutil.TestUserID + `","node_id":"` + testutil.TestTenantID + `","permission":"pricing.edit"}`
	rec := doRequest(h.Resolve, http.MethodPost, "/api/v1/permissions/resolve", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "allowed", data["decision"])
	assert.Equal(t, true, data["allowed"])
}

func TestResolveEndpointStoreOutageIs503(t *testing.T) {
	h := newAccessHandler(&stubGuard{}, &stubResolver{
		decision: domain.DecisionDenied,
		err:      errors.StoreUnavailable(context.DeadlineExceeded),
	})

	body := `{"user_id":"` + testutil.TestUserID + `","node_id":"` + testutil.TestTenantID + `","permission":"pricing.edit"}`
	rec := doRequest(h.Resolve, http.MethodPost, "/api/v1/permissions/resolve", body)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "feature unavailable", resp.Error.Message)
}

func TestEffectivePermissionsEndpoint(t *testing.T) {
	h := newAccessHandler(&stubGuard{}, &stubResolver{perms: []string{"pricing.view"}})

	rec := doRequest(h.EffectivePermissions, http.MethodGet,
		"/api/v1/permissions/effective?user_id="+testutil.TestUserID+"&node_id="+testutil.TestTenantID, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, []interface{}{"pricing.view"}, data["permissions"])
}

func TestEffectivePermissionsRequiresParams(t *testing.T) {
	h := newAccessHandler(&stubGuard{}, &stubResolver{})

	rec := doRequest(h.EffectivePermissions, http.MethodGet, "/api/v1/permissions/effective", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEffectivePermissionsEmptySetIsEmptyArray(t *testing.T) {
	h := newAccessHandler(&stubGuard{}, &stubResolver{perms: nil})

	rec := doRequest(h.EffectivePermissions, http.MethodGet,
		"/api/v1/permissions/effective?user_id="+testutil.TestUserID+"&node_id="+testutil.TestTenantID, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, []interface{}{}, data["permissions"])
}
