package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type sendMessageRequest struct {
	ChatID  string `json:"chat_id" validate:"required,uuid"`
	Content string `json:"content" validate:"required"`
}

type markReadRequest struct {
	ChatID string `json:"chat_id" validate:"required,uuid"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	me, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	msg, err := s.messages.Append(r.Context(), req.ChatID, me.UserID, req.Content)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, msg)
}

func intParam(raw string, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidArgument(name + " must be an integer")
	}
	return v, nil
}

// handleGetMessages serves one page of history, or the whole history when
// all=true.
func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	me, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	chatId := chi.URLParam(r, "chatId")
	if err := s.chats.EnsureMember(r.Context(), chatId, me.UserID); err != nil {
		s.respondError(w, r, err)
		return
	}

	query := r.URL.Query()
	if all, _ := strconv.ParseBool(query.Get("all")); all {
		messages, err := s.messages.ListAll(r.Context(), chatId)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		respond(w, http.StatusOK, messages)
		return
	}

	page, err := intParam(query.Get("page"), "page")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	limit, err := intParam(query.Get("limit"), "limit")
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.messages.Page(r.Context(), chatId, page, limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, result)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	me, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	var req markReadRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.messages.MarkRead(r.Context(), req.ChatID, me.UserID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, result)
}
