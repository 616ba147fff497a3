package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	usecase "github.com/practice-sem-2/chat-service/internal/usecases"
)

type createChatRequest struct {
	OtherUserID string `json:"other_user_id" validate:"required,uuid"`
}

type typingRequest struct {
	Typing *bool `json:"typing" validate:"required"`
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	me, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	var req createChatRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	chat, created, err := s.chats.GetOrCreateChat(r.Context(), me.UserID, req.OtherUserID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respond(w, status, chat)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	me, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	userId := query.Get("userId")
	if userId == "" {
		userId = me.UserID
	} else if userId != me.UserID {
		s.respondError(w, r, usecase.ErrPermissionDenied)
		return
	}

	isGroup := false
	if raw := query.Get("isGroup"); raw != "" {
		var err error
		if isGroup, err = strconv.ParseBool(raw); err != nil {
			s.respondError(w, r, invalidArgument("isGroup must be a boolean"))
			return
		}
	}

	chats, err := s.chats.ListChats(r.Context(), userId, isGroup)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, chats)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	me, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	chat, err := s.chats.GetChat(r.Context(), chi.URLParam(r, "chatId"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	for _, p := range chat.Participants {
		if p.UserID == me.UserID {
			respond(w, http.StatusOK, chat)
			return
		}
	}
	s.respondError(w, r, usecase.ErrUserIsNotAChatMember)
}

func (s *Server) handleTyping(w http.ResponseWriter, r *http.Request) {
	me, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	var req typingRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.messages.Typing(r.Context(), chi.URLParam(r, "chatId"), me.UserID, *req.Typing); err != nil {
		s.respondError(w, r, err)
		return
	}
	respondMessage(w, http.StatusOK, "ok")
}
