package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ehrlich-b/scriptbot/internal/apperr"
)

type sendResponse struct {
	Msg  []string `json:"msg"`
	Exit bool     `json:"exit"`
}

type echoResponse struct {
	Msg   []string `json:"msg"`
	Exit  bool     `json:"exit"`
	Reset bool     `json:"reset"`
}

type connectResponse struct {
	Msg   []string `json:"msg"`
	Token string   `json:"token"`
}

type tokenResponse struct {
	Token *string `json:"token"`
}

// handleConnect implements GET / (spec §6): creates a guest session
// and surfaces Welcome's onEnter speaks.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	sess, token, err := s.registry.Connect()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	msg, err := s.currentMachine().Hello(r.Context(), sess)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, connectResponse{Msg: msg, Token: token})
}

// handleSend implements GET /send (spec §6/§4.5).
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	msg := q.Get("msg")
	token := q.Get("token")
	// A missing token is a bad request; a present but empty one is an
	// invalid token and is rejected by Resolve below.
	if msg == "" || !q.Has("token") {
		writeError(w, http.StatusBadRequest, "msg and token are required")
		return
	}

	sess, err := s.registry.Resolve(token)
	if err != nil {
		writeInvalidToken(w, err)
		return
	}

	replies, exited, err := s.currentMachine().OnMessage(r.Context(), sess, msg)
	if err != nil {
		var loginErr *apperr.LoginError
		if errors.As(err, &loginErr) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if exited {
		s.registry.Evict(sess.Username())
	}

	writeJSON(w, http.StatusOK, sendResponse{Msg: replies, Exit: exited})
}

// handleEcho implements GET /echo (spec §6/§4.5): drives the
// inactivity-timeout transition.
func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	secondsStr := r.URL.Query().Get("seconds")
	token := r.URL.Query().Get("token")
	if secondsStr == "" || token == "" {
		writeError(w, http.StatusBadRequest, "seconds and token are required")
		return
	}
	seconds, err := strconv.Atoi(secondsStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "seconds must be an integer")
		return
	}

	sess, err := s.registry.Resolve(token)
	if err != nil {
		writeInvalidToken(w, err)
		return
	}

	replies, exited, _, err := s.currentMachine().OnTimeout(r.Context(), sess, seconds)
	if err != nil {
		var loginErr *apperr.LoginError
		if errors.As(err, &loginErr) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if exited {
		s.registry.Evict(sess.Username())
	}

	// reset is reserved (spec §9 Open Question 2): the reference
	// server never computes it, and neither do we.
	writeJSON(w, http.StatusOK, echoResponse{Msg: replies, Exit: exited, Reset: false})
}

// handleLogin implements GET /login (spec §4.6/§6).
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	passwd := r.URL.Query().Get("passwd")
	token := r.URL.Query().Get("token")
	if username == "" || passwd == "" || token == "" {
		writeError(w, http.StatusBadRequest, "username, passwd and token are required")
		return
	}

	sess, err := s.registry.Resolve(token)
	if err != nil {
		writeInvalidToken(w, err)
		return
	}

	newToken, err := s.registry.Login(r.Context(), sess, username, passwd)
	if err != nil {
		writeJSON(w, http.StatusOK, tokenResponse{Token: nil})
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: &newToken})
}

// handleRegister implements GET /register (spec §4.6/§6).
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	passwd := r.URL.Query().Get("passwd")
	token := r.URL.Query().Get("token")
	if username == "" || passwd == "" || token == "" {
		writeError(w, http.StatusBadRequest, "username, passwd and token are required")
		return
	}

	sess, err := s.registry.Resolve(token)
	if err != nil {
		writeInvalidToken(w, err)
		return
	}

	newToken, err := s.registry.Register(r.Context(), sess, username, passwd)
	if err != nil {
		writeJSON(w, http.StatusOK, tokenResponse{Token: nil})
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: &newToken})
}

func writeInvalidToken(w http.ResponseWriter, err error) {
	writeError(w, http.StatusForbidden, err.Error())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
