package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amplmaint/mo-approval-api/internal/sap"
)

type erpCall struct {
	Method string
	Path   string
	Query  string
	Token  string
	Body   string
}

// newOrdersAPI stands up the order routes against a fake ERP.  The odata
// callback decides each OData response; the token endpoint always
// succeeds.
func newOrdersAPI(t *testing.T, odata func(call erpCall, w http.ResponseWriter)) (*echo.Echo, *[]erpCall) {
	t.Helper()
	calls := &[]erpCall{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.Header().Set("X-CSRF-Token", "tok-1")
			w.Header().Add("Set-Cookie", "SAP_SESSIONID=s1; path=/")
			w.WriteHeader(http.StatusOK)
			return
		}
		body, _ := io.ReadAll(r.Body)
		call := erpCall{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Token:  r.Header.Get("X-CSRF-Token"),
			Body:   string(body),
		}
		*calls = append(*calls, call)
		odata(call, w)
	}))
	t.Cleanup(upstream.Close)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	tokens := sap.NewTokenManager(sap.TokenManagerConfig{
		TokenURL:      upstream.URL + "/token",
		Username:      "svc",
		Password:      "pw",
		ClientID:      "100",
		CacheDuration: time.Hour,
	}, upstream.Client(), log)
	client := sap.NewClient(sap.ClientConfig{
		BaseURL:     upstream.URL,
		ServicePath: "/odata",
		Username:    "svc",
		Password:    "pw",
		ClientID:    "100",
	}, upstream.Client(), tokens, log)

	h := NewOrdersHandler(client, false, log)
	e := echo.New()
	o := e.Group("/api/maintenance-orders")
	o.GET("", h.List)
	o.GET("/:orderNumber/:objectNumber", h.Get)
	o.GET("/:orderNumber/:objectNumber/status", h.Status)
	o.POST("/approve", h.Approve)
	o.POST("/reject", h.Reject)
	return e, calls
}

func serveList(results ...string) func(erpCall, http.ResponseWriter) {
	return func(_ erpCall, w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		body := "[]"
		if len(results) > 0 {
			b, _ := json.Marshal(results)
			body = string(b)
		}
		fmt.Fprintf(w, `{"d":{"results":%s}}`, body)
	}
}

func TestListTranslatesFiltersToOData(t *testing.T) {
	e, calls := newOrdersAPI(t, func(_ erpCall, w http.ResponseWriter) {
		fmt.Fprint(w, `{"d":{"results":[{"OrderNumber":"1000001"},{"OrderNumber":"1000002"}]}}`)
	})

	rec, out := doJSON(e, http.MethodGet,
		"/api/maintenance-orders?plant=1100&status=PENDING", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, float64(2), out["count"])

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, http.MethodGet, call.Method)
	assert.Equal(t, "/odata/MO_APPROVAL_HEADERSet", call.Path)
	// Echo/net-http decode the query; inspect the decoded filter.
	req := httptest.NewRequest(http.MethodGet, "http://x/?"+call.Query, nil)
	assert.Equal(t, "Plant eq '1100' and Status eq 'PENDING'", req.URL.Query().Get("$filter"))
	assert.Empty(t, call.Token, "list is a read, no csrf token expected")
}

func TestListWithoutResultsReturnsEmptyArray(t *testing.T) {
	e, _ := newOrdersAPI(t, serveList())

	rec, out := doJSON(e, http.MethodGet, "/api/maintenance-orders", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), out["count"])
	data, ok := out["data"].([]any)
	require.True(t, ok, "data must be an array even when upstream returns none")
	assert.Empty(t, data)
}

func TestGetBuildsCompositeKeyAndEscapesQuotes(t *testing.T) {
	e, calls := newOrdersAPI(t, func(_ erpCall, w http.ResponseWriter) {
		fmt.Fprint(w, `{"d":{"OrderNumber":"1000001","Status":"PENDING"}}`)
	})

	rec, out := doJSON(e, http.MethodGet, "/api/maintenance-orders/10'01/OR123", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PENDING", out["data"].(map[string]any)["Status"])

	require.Len(t, *calls, 1)
	assert.Equal(t, "/odata/MO_APPROVAL_HEADERSet(OrderNumber='10''01',ObjectNumber='OR123')", (*calls)[0].Path)
}

func TestApprovePatchesEachOrder(t *testing.T) {
	e, calls := newOrdersAPI(t, func(_ erpCall, w http.ResponseWriter) {
		fmt.Fprint(w, `{"d":{}}`)
	})

	rec, out := doJSON(e, http.MethodPost, "/api/maintenance-orders/approve", "",
		`{"orders":[{"orderNumber":"1000001","objectNumber":"OR1"},{"orderNumber":"1000002","objectNumber":"OR2"}],"reason":"ok"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, []any{"1000001", "1000002"}, out["orders"])

	require.Len(t, *calls, 2)
	for i, call := range *calls {
		assert.Equal(t, http.MethodPatch, call.Method)
		assert.Equal(t, fmt.Sprintf("/odata/MO_APPROVAL_HEADERSet(OrderNumber='100000%d',ObjectNumber='OR%d')", i+1, i+1), call.Path)
		assert.Equal(t, "tok-1", call.Token, "decision calls must carry the csrf token")
		assert.JSONEq(t, `{"Status":"APPROVED"}`, call.Body)
	}
}

func TestRejectSendsRejectedStatus(t *testing.T) {
	e, calls := newOrdersAPI(t, func(_ erpCall, w http.ResponseWriter) {
		fmt.Fprint(w, `{"d":{}}`)
	})

	rec, _ := doJSON(e, http.MethodPost, "/api/maintenance-orders/reject", "",
		`{"orders":[{"orderNumber":"1000001","objectNumber":"OR1"}],"reason":"duplicate"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, *calls, 1)
	assert.JSONEq(t, `{"Status":"REJECTED"}`, (*calls)[0].Body)
}

func TestDecisionAbortsOnFirstFailureWithProgress(t *testing.T) {
	e, calls := newOrdersAPI(t, func(call erpCall, w http.ResponseWriter) {
		if call.Path == "/odata/MO_APPROVAL_HEADERSet(OrderNumber='1000002',ObjectNumber='OR2')" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":{"value":"order is locked"}}}`)
			return
		}
		fmt.Fprint(w, `{"d":{}}`)
	})

	rec, out := doJSON(e, http.MethodPost, "/api/maintenance-orders/approve", "",
		`{"orders":[{"orderNumber":"1000001","objectNumber":"OR1"},{"orderNumber":"1000002","objectNumber":"OR2"},{"orderNumber":"1000003","objectNumber":"OR3"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, []any{"1000001"}, out["completed"])

	// The third order must never have been attempted.
	assert.Len(t, *calls, 2)
}

func TestDecisionValidation(t *testing.T) {
	e, calls := newOrdersAPI(t, serveList())

	rec, out := doJSON(e, http.MethodPost, "/api/maintenance-orders/approve", "", `{"orders":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request: orders array is required", out["error"])

	rec, out = doJSON(e, http.MethodPost, "/api/maintenance-orders/approve", "",
		`{"orders":[{"orderNumber":"1000001"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Each order needs orderNumber and objectNumber", out["error"])

	assert.Empty(t, *calls)
}

func TestListUpstreamErrorPreservesStatus(t *testing.T) {
	e, _ := newOrdersAPI(t, func(_ erpCall, w http.ResponseWriter) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	rec, out := doJSON(e, http.MethodGet, "/api/maintenance-orders", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Error fetching orders", out["error"])
	assert.Equal(t, float64(http.StatusServiceUnavailable), out["statusCode"])
}
