package server

import (
	"net/http"
)

type presenceResponse struct {
	Topic  string   `json:"topic"`
	Online []string `json:"online"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	me, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	respond(w, http.StatusOK, me)
}

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.currentUser(w, r); !ok {
		return
	}

	users, err := s.users.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, users)
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.currentUser(w, r); !ok {
		return
	}
	respond(w, http.StatusOK, &presenceResponse{
		Topic:  s.presence.Topic(),
		Online: s.presence.OnlineUserIDs(),
	})
}
