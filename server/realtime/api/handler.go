package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	commonauth "team_server/server/common/auth"
	commonlog "team_server/server/common/log"
	"team_server/server/common/middleware"
	"team_server/server/realtime/domain"
	"team_server/server/realtime/service"
)

type Handler struct {
	supervisor *service.ConnectionSupervisor
	calls      *service.CallManager
	auth       *commonauth.Service
}

func NewHandler(supervisor *service.ConnectionSupervisor, calls *service.CallManager, auth *commonauth.Service) *Handler {
	return &Handler{supervisor: supervisor, calls: calls, auth: auth}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, NewHealthResponse("ok")) })
	r.GET("/ws", h.handleWS)

	api := r.Group("/api/v1")
	api.Use(middleware.AuthRequired(h.auth))
	{
		api.POST("/calls/direct", h.initiateDirectCall)
		api.POST("/calls/group", h.initiateGroupCall)
		api.GET("/calls/:id", h.getCall)
		api.POST("/calls/:id/join", h.joinGroupCall)
		api.POST("/calls/:id/leave", h.leaveGroupCall)
		api.POST("/calls/:id/respond", h.respondDirectCall)
		api.POST("/calls/:id/end", h.endCall)
		api.POST("/calls/:id/signal", h.relaySignal)

		admin := api.Group("/admin")
		admin.Use(middleware.RequireRoles("admin"))
		{
			admin.POST("/calls/cleanup", h.forceCleanupCalls)
		}
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func (h *Handler) handleWS(c *gin.Context) {
	token, ok := wsAccessToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("bearer token is required"))
		return
	}
	userID, username, _, err := h.auth.ParseAuthContext(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("invalid token"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	defer conn.Close()

	h.supervisor.Serve(c.Request.Context(), conn, userID, username)
}

func wsAccessToken(c *gin.Context) (string, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token != "" {
			return token, true
		}
	}
	token := strings.TrimSpace(c.Query("access_token"))
	if token == "" {
		token = strings.TrimSpace(c.Query("token"))
	}
	if token == "" {
		return "", false
	}
	return token, true
}

func (h *Handler) initiateDirectCall(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req struct {
		ReceiverID string `json:"receiver_id" binding:"required"`
		CallType   string `json:"call_type" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	call, err := h.calls.InitiateDirect(c.Request.Context(), actorID, req.ReceiverID, domain.CallType(req.CallType))
	if err != nil {
		writeCallError(c, err, call)
		return
	}
	c.JSON(http.StatusCreated, NewCallResponse(call))
}

func (h *Handler) initiateGroupCall(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req struct {
		GroupID  string   `json:"group_id" binding:"required"`
		CallType string   `json:"call_type" binding:"required"`
		Invitees []string `json:"invitees"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	call, err := h.calls.InitiateGroup(c.Request.Context(), actorID, req.GroupID, domain.CallType(req.CallType), req.Invitees)
	if err != nil {
		writeCallError(c, err, call)
		return
	}
	c.JSON(http.StatusCreated, NewCallResponse(call))
}

func (h *Handler) getCall(c *gin.Context) {
	call, err := h.calls.GetCall(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeCallError(c, err, call)
		return
	}
	c.JSON(http.StatusOK, NewCallResponse(call))
}

func (h *Handler) joinGroupCall(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		return
	}
	call, err := h.calls.JoinGroup(c.Request.Context(), c.Param("id"), actorID)
	if err != nil {
		writeCallError(c, err, call)
		return
	}
	c.JSON(http.StatusOK, NewCallResponse(call))
}

func (h *Handler) leaveGroupCall(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		return
	}
	call, err := h.calls.LeaveGroup(c.Request.Context(), c.Param("id"), actorID)
	if err != nil {
		writeCallError(c, err, call)
		return
	}
	c.JSON(http.StatusOK, NewCallResponse(call))
}

func (h *Handler) respondDirectCall(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req struct {
		Action string `json:"action" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	call, err := h.calls.RespondDirect(c.Request.Context(), c.Param("id"), actorID, req.Action)
	if err != nil {
		writeCallError(c, err, call)
		return
	}
	c.JSON(http.StatusOK, NewCallResponse(call))
}

func (h *Handler) endCall(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		return
	}
	call, err := h.calls.End(c.Request.Context(), c.Param("id"), actorID)
	if err != nil {
		writeCallError(c, err, call)
		return
	}
	c.JSON(http.StatusOK, NewCallResponse(call))
}

func (h *Handler) relaySignal(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req struct {
		SignalType string          `json:"signal_type" binding:"required"`
		Payload    json.RawMessage `json:"payload" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	if err := h.calls.RelaySignal(c.Request.Context(), c.Param("id"), actorID, req.SignalType, req.Payload); err != nil {
		writeCallError(c, err, domain.Call{})
		return
	}
	c.JSON(http.StatusOK, NewOKResponse())
}

func (h *Handler) forceCleanupCalls(c *gin.Context) {
	actorID, ok := actorFromContext(c)
	if !ok {
		return
	}
	report, err := h.calls.ForceCleanupAll(c.Request.Context(), actorID)
	if err != nil {
		writeCallError(c, err, domain.Call{})
		return
	}
	c.JSON(http.StatusOK, NewCleanupResponse(report))
}

func actorFromContext(c *gin.Context) (string, bool) {
	raw, ok := c.Get("auth_user_id")
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("authentication required"))
		return "", false
	}
	userID, ok := raw.(string)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse("authentication required"))
		return "", false
	}
	return userID, true
}

func writeCallError(c *gin.Context, err error, call domain.Call) {
	switch {
	case errors.Is(err, service.ErrCallNotFound):
		c.JSON(http.StatusNotFound, NewErrorResponse(err.Error()))
	case errors.Is(err, service.ErrCallConflict):
		c.JSON(http.StatusConflict, NewCallConflictResponse(err.Error(), call))
	case errors.Is(err, service.ErrNotPermitted):
		c.JSON(http.StatusForbidden, NewErrorResponse(err.Error()))
	case errors.Is(err, service.ErrInvalidCallInput):
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error()))
	default:
		commonlog.Errorf("event=realtime_api action=handle_call status=failed error=%v", err)
		c.JSON(http.StatusInternalServerError, NewErrorResponse(err.Error()))
	}
}
