package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/amplmaint/mo-approval-api/internal/middleware"
	"github.com/amplmaint/mo-approval-api/internal/queue"
	"github.com/amplmaint/mo-approval-api/internal/sap"
	queuepublisher "github.com/amplmaint/mo-approval-api/internal/service"
)

// OrdersHandler proxies the maintenance-order endpoints the UI consumes
// onto the upstream OData service.  Reads pass straight through; the
// approve/reject decisions go through the gateway's CSRF-token path and
// optionally publish an audit event.
type OrdersHandler struct {
	SAP          *sap.Client
	AuditEnabled bool
	Log          *logrus.Entry
}

func NewOrdersHandler(client *sap.Client, auditEnabled bool, log *logrus.Logger) *OrdersHandler {
	return &OrdersHandler{
		SAP:          client,
		AuditEnabled: auditEnabled,
		Log:          log.WithField("component", "orders"),
	}
}

// ----- DTOs -----

type orderKey struct {
	OrderNumber  string `json:"orderNumber"`
	ObjectNumber string `json:"objectNumber"`
}

type decisionReq struct {
	Orders []orderKey `json:"orders"`
	Reason string     `json:"reason"`
}

// odataList is the OData v2 collection envelope: {"d":{"results":[...]}}.
type odataList struct {
	D struct {
		Results []json.RawMessage `json:"results"`
	} `json:"d"`
}

// odataSingle is the OData v2 entity envelope: {"d":{...}}.
type odataSingle struct {
	D json.RawMessage `json:"d"`
}

// List fetches maintenance orders, translating the UI's filter
// parameters into an OData $filter expression.
func (h *OrdersHandler) List(c echo.Context) error {
	filters := []struct{ param, field string }{
		{"orderNumber", "OrderNumber"},
		{"plant", "Plant"},
		{"location", "FunctionalLocation"},
		{"user", "ApproverUsername"},
		{"status", "Status"},
	}
	var parts []string
	for _, f := range filters {
		if v := c.QueryParam(f.param); v != "" {
			parts = append(parts, fmt.Sprintf("%s eq '%s'", f.field, odataEscape(v)))
		}
	}
	path := "/MO_APPROVAL_HEADERSet?$format=json"
	if len(parts) > 0 {
		path += "&$filter=" + url.QueryEscape(strings.Join(parts, " and "))
	}

	body, err := h.SAP.Get(c.Request().Context(), path)
	if err != nil {
		return upstreamFail(c, err, "Error fetching orders")
	}
	var out odataList
	if err := json.Unmarshal(body, &out); err != nil {
		return c.JSON(http.StatusBadGateway, echo.Map{"success": false, "error": "Unexpected upstream response"})
	}
	results := out.D.Results
	if results == nil {
		results = []json.RawMessage{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":   true,
		"data":      results,
		"count":     len(results),
		"timestamp": time.Now().UTC(),
	})
}

// Get fetches a single order by its composite key.
func (h *OrdersHandler) Get(c echo.Context) error {
	path := fmt.Sprintf("/MO_APPROVAL_HEADERSet(OrderNumber='%s',ObjectNumber='%s')?$format=json",
		odataEscape(c.Param("orderNumber")), odataEscape(c.Param("objectNumber")))

	body, err := h.SAP.Get(c.Request().Context(), path)
	if err != nil {
		return upstreamFail(c, err, "Error fetching order details")
	}
	var out odataSingle
	if err := json.Unmarshal(body, &out); err != nil {
		return c.JSON(http.StatusBadGateway, echo.Map{"success": false, "error": "Unexpected upstream response"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": out.D, "timestamp": time.Now().UTC()})
}

// Status fetches the order's status history via the navigation property.
func (h *OrdersHandler) Status(c echo.Context) error {
	path := fmt.Sprintf("/MO_APPROVAL_HEADERSet(OrderNumber='%s',ObjectNumber='%s')/MO_ORDER_STATUSSet?$format=json",
		odataEscape(c.Param("orderNumber")), odataEscape(c.Param("objectNumber")))

	body, err := h.SAP.Get(c.Request().Context(), path)
	if err != nil {
		return upstreamFail(c, err, "Error fetching order status")
	}
	var out odataList
	if err := json.Unmarshal(body, &out); err != nil {
		return c.JSON(http.StatusBadGateway, echo.Map{"success": false, "error": "Unexpected upstream response"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": out.D.Results, "count": len(out.D.Results)})
}

// Approve marks the given orders approved in the ERP.
func (h *OrdersHandler) Approve(c echo.Context) error {
	return h.decide(c, "approve", "APPROVED")
}

// Reject marks the given orders rejected in the ERP.
func (h *OrdersHandler) Reject(c echo.Context) error {
	return h.decide(c, "reject", "REJECTED")
}

// decide applies an approval decision to each order via a mutating
// OData call, then publishes one audit event for the batch.  The first
// upstream failure aborts the batch and reports how far it got.
func (h *OrdersHandler) decide(c echo.Context, action, status string) error {
	var req decisionReq
	if err := c.Bind(&req); err != nil || len(req.Orders) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "Invalid request: orders array is required"})
	}

	payload, err := json.Marshal(map[string]string{"Status": status})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "Internal error"})
	}

	done := make([]string, 0, len(req.Orders))
	for _, o := range req.Orders {
		if o.OrderNumber == "" || o.ObjectNumber == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "Each order needs orderNumber and objectNumber"})
		}
		path := fmt.Sprintf("/MO_APPROVAL_HEADERSet(OrderNumber='%s',ObjectNumber='%s')",
			odataEscape(o.OrderNumber), odataEscape(o.ObjectNumber))
		if _, err := h.SAP.Patch(c.Request().Context(), path, payload); err != nil {
			h.Log.WithError(err).WithField("order", o.OrderNumber).Errorf("%s failed", action)
			return upstreamFailWithProgress(c, err, done)
		}
		done = append(done, o.OrderNumber)
	}

	h.publishAudit(c, action, req.Reason, done)

	return c.JSON(http.StatusOK, echo.Map{
		"success":   true,
		"message":   fmt.Sprintf("Successfully %sd %d order(s)", action, len(done)),
		"orders":    done,
		"timestamp": time.Now().UTC(),
	})
}

// publishAudit fires the audit event for a completed decision.  Runs in
// the background and is strictly best-effort.
func (h *OrdersHandler) publishAudit(c echo.Context, action, reason string, orders []string) {
	if !h.AuditEnabled || len(orders) == 0 {
		return
	}
	sess, _ := middleware.CurrentSession(c)
	ev := queue.OrderAuditEvent{
		Action:       action,
		OrderNumbers: orders,
		Reason:       reason,
		UserID:       sess.UserID,
		Plant:        sess.Plant,
		OccurredAt:   time.Now().UTC().Format(time.RFC3339),
	}
	log := h.Log.Logger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = queuepublisher.PublishOrderAudit(ctx, log, ev)
	}()
}

// odataEscape doubles single quotes, the OData literal escape, so user
// input cannot break out of a key or $filter literal.
func odataEscape(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

// upstreamFail translates a gateway error into the response shape the
// frontend expects, preserving the upstream status code when there is
// one.
func upstreamFail(c echo.Context, err error, msg string) error {
	var ue *sap.UpstreamError
	if errors.As(err, &ue) {
		return c.JSON(ue.StatusCode, echo.Map{
			"success":    false,
			"error":      msg,
			"details":    ue.Body,
			"statusCode": ue.StatusCode,
		})
	}
	return c.JSON(http.StatusBadGateway, echo.Map{"success": false, "error": err.Error()})
}

func upstreamFailWithProgress(c echo.Context, err error, done []string) error {
	var ue *sap.UpstreamError
	status := http.StatusBadGateway
	details := ""
	if errors.As(err, &ue) {
		status = ue.StatusCode
		details = ue.Body
	}
	return c.JSON(status, echo.Map{
		"success":   false,
		"error":     err.Error(),
		"details":   details,
		"completed": done,
	})
}
