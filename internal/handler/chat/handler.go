package chat

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/support-desk/client/internal/model/support"
	chatService "github.com/zhouzirui/support-desk/client/internal/service/chat"
	"github.com/zhouzirui/support-desk/client/internal/service/conversation"
	"github.com/zhouzirui/support-desk/client/internal/service/dispatch"
	"github.com/zhouzirui/support-desk/client/pkg/utils"
)

// Handler 客服会话工作区的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	ws      *WebSocketHandler
}

// New 创建工作区处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		ws:      NewWebSocketHandler(chatSvc),
	}
}

// RegisterRoutes 注册工作区相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/workspaces", h.handleCreateWorkspace)
	r.Route("/workspaces/{workspaceID}", func(wr chi.Router) {
		wr.Delete("/", h.handleDeleteWorkspace)
		wr.Put("/contact", h.handleSetContact)
		wr.Get("/sessions", h.handleListSessions)
		wr.Post("/sessions/{sessionID}/resume", h.handleResume)
		wr.Get("/conversation", h.handleConversation)
		wr.Post("/messages", h.handleSendMessage)
		wr.Post("/choices", h.handleChoose)
		wr.Post("/reset", h.handleReset)
		wr.Get("/ws", h.ws.handleWebSocket)
	})
}

// TurnView 带有渲染后HTML的单条消息
type TurnView struct {
	support.Turn
	HTML string `json:"html,omitempty"`
}

// ConversationView 展示层使用的会话视图
type ConversationView struct {
	Contact   support.Contact           `json:"contact,omitempty"`
	SessionID string                    `json:"sessionId,omitempty"`
	State     conversation.State        `json:"state"`
	Terminal  bool                      `json:"terminal"`
	Offer     []support.ChoiceDirective `json:"offer,omitempty"`
	Turns     []TurnView                `json:"turns"`
}

// renderView 将工作区视图转换为响应体，助手消息附带Markdown渲染结果
func renderView(view chatService.View) ConversationView {
	turns := make([]TurnView, 0, len(view.Turns))
	for _, turn := range view.Turns {
		tv := TurnView{Turn: turn}
		if turn.Role == support.RoleAssistant {
			tv.HTML = utils.RenderMarkdown(turn.Text)
		}
		turns = append(turns, tv)
	}

	return ConversationView{
		Contact:   view.Contact,
		SessionID: view.SessionID,
		State:     view.State,
		Terminal:  view.Terminal,
		Offer:     view.Offer,
		Turns:     turns,
	}
}

type outcomeResponse struct {
	Outcome      dispatch.Outcome `json:"outcome"`
	Conversation ConversationView `json:"conversation"`
}

func (h *Handler) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := h.chatSvc.CreateWorkspace(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]string{"id": ws.ID()})
}

func (h *Handler) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteWorkspace(r.Context(), chi.URLParam(r, "workspaceID")); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSetContact 校验联系方式并开始新的会话
func (h *Handler) handleSetContact(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	var payload struct {
		Contact string `json:"contact"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessions, err := ws.SetContact(r.Context(), payload.Contact)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"contact":  ws.Contact(),
		"sessions": sessions,
	})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	sessions, err := ws.Sessions(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleResume 回放历史会话
func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	view, err := ws.Resume(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, renderView(view))
}

func (h *Handler) handleConversation(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	utils.RespondJSON(w, http.StatusOK, renderView(ws.View()))
}

// handleSendMessage 发送用户消息并等待助手回复
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.respondOutcome(r.Context(), w, ws, func(ctx context.Context) (dispatch.Outcome, error) {
		return ws.Send(ctx, payload.Text)
	})
}

// handleChoose 激活助手提供的选项
func (h *Handler) handleChoose(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	var payload struct {
		Action string `json:"action"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.respondOutcome(r.Context(), w, ws, func(ctx context.Context) (dispatch.Outcome, error) {
		return ws.Choose(ctx, payload.Action)
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r)
	if !ok {
		return
	}

	utils.RespondJSON(w, http.StatusOK, renderView(ws.Reset()))
}

func (h *Handler) respondOutcome(ctx context.Context, w http.ResponseWriter, ws *chatService.Workspace, run func(context.Context) (dispatch.Outcome, error)) {
	outcome, err := run(ctx)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	status := http.StatusOK
	switch outcome.Status {
	case dispatch.StatusIgnored:
		status = http.StatusConflict
		if outcome.Err != nil {
			outcome.Notice = ignoredNotice(outcome.Err)
		}
	case dispatch.StatusFailed:
		status = http.StatusBadGateway
	}

	utils.RespondJSON(w, status, outcomeResponse{
		Outcome:      outcome,
		Conversation: renderView(ws.View()),
	})
}

func (h *Handler) workspace(w http.ResponseWriter, r *http.Request) (*chatService.Workspace, bool) {
	ws, err := h.chatSvc.GetWorkspace(r.Context(), chi.URLParam(r, "workspaceID"))
	if err != nil {
		respondServiceError(w, err)
		return nil, false
	}
	return ws, true
}

// ignoredNotice 说明请求被忽略的原因
func ignoredNotice(err error) string {
	switch {
	case errors.Is(err, conversation.ErrBusy):
		return "Still waiting for the previous reply."
	case errors.Is(err, conversation.ErrTerminal):
		return "This conversation has ended. Start a new one."
	case errors.Is(err, conversation.ErrEmptyMessage):
		return "Message is empty."
	case errors.Is(err, dispatch.ErrNotOffered):
		return "That option is no longer available."
	default:
		return "Request ignored."
	}
}

// statusFor 将服务层错误映射为HTTP状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrWorkspaceNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrContactRequired):
		return http.StatusConflict
	case errors.Is(err, chatService.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, support.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, support.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

// respondServiceError 只向客户端暴露面向用户的提示，原始错误写入日志
func respondServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)

	var message string
	switch {
	case errors.Is(err, chatService.ErrWorkspaceNotFound),
		errors.Is(err, chatService.ErrContactRequired),
		errors.Is(err, chatService.ErrSuperseded):
		message = err.Error()
	default:
		message = support.UserMessage(support.KindOf(err))
	}

	if status >= http.StatusInternalServerError {
		log.Printf("[workspace] request failed: %v", err)
	}
	utils.RespondError(w, status, message)
}
