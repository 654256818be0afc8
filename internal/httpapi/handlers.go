package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/berios/subtitle-backend/internal/jobs"
	"github.com/berios/subtitle-backend/internal/session"
	"github.com/berios/subtitle-backend/pkg/log"
)

type enqueueRequest struct {
	URL            string `json:"url"`
	VideoID        string `json:"video_id"`
	TargetLanguage string `json:"target_language"`
}

type jobResponse struct {
	OK      bool   `json:"ok"`
	VideoID string `json:"video_id"`
	Status  string `json:"status"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !s.admit(r) {
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Try again later.")
		return
	}

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	videoID := req.VideoID
	if videoID == "" {
		videoID = extractVideoID(req.URL)
	}
	if videoID == "" {
		writeError(w, http.StatusBadRequest, "could not extract video_id from url")
		return
	}

	tag := s.defaultLanguage
	if req.TargetLanguage != "" {
		parsed, err := language.Parse(req.TargetLanguage)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid target_language")
			return
		}
		tag = parsed
	}

	jobKey := jobs.Key(videoID, tag)
	log.Info("Enqueue ip=%s job_key=%s url=%s", clientIP(r), jobKey, req.URL)

	params := jobs.Params{URL: req.URL}
	if tag != language.Und {
		params.Language = tag.String()
	}

	res, err := s.resolver.Enqueue(r.Context(), jobKey, params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.touchSession(r, session.Data{"last_video": videoID})

	status := http.StatusAccepted
	if res.Status == jobs.StatusDone {
		status = http.StatusOK
	}
	writeJSON(w, status, jobResponse{OK: true, VideoID: videoID, Status: string(res.Status)})
}

func (s *Server) handleSubtitleByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// /api/subtitles/{id} or /api/subtitles/{id}/status
	path := strings.TrimPrefix(r.URL.Path, "/api/subtitles/")
	wantStatus := false
	if strings.HasSuffix(path, "/status") {
		wantStatus = true
		path = strings.TrimSuffix(path, "/status")
	}
	videoID := strings.TrimSuffix(path, "/")
	if decoded, err := url.PathUnescape(videoID); err == nil {
		videoID = decoded
	}
	if videoID == "" || strings.Contains(videoID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	tag := s.defaultLanguage
	if lang := r.URL.Query().Get("lang"); lang != "" {
		parsed, err := language.Parse(lang)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid lang")
			return
		}
		tag = parsed
	}
	jobKey := jobs.Key(videoID, tag)

	if wantStatus {
		status, err := s.resolver.Status(r.Context(), jobKey)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, jobResponse{OK: true, VideoID: videoID, Status: string(status)})
		return
	}

	res, err := s.resolver.FetchResult(r.Context(), jobKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	switch res.Status {
	case jobs.StatusDone:
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":        true,
			"video_id":  videoID,
			"subtitles": json.RawMessage(res.Result),
		})
	case jobs.StatusProcessing:
		writeJSON(w, http.StatusAccepted, jobResponse{OK: true, VideoID: videoID, Status: string(jobs.StatusProcessing)})
	default:
		writeError(w, http.StatusNotFound, "subtitles not found")
	}
}

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.catalog == nil {
		writeError(w, http.StatusNotFound, "catalog disabled")
		return
	}
	videos, err := s.catalog.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, videos)
}

// admit runs the rate limiter for the request origin. Limiter backend errors
// are absorbed: availability of the API wins over strict accounting.
func (s *Server) admit(r *http.Request) bool {
	if s.limiter == nil {
		return true
	}
	ok, err := s.limiter.Allow(r.Context(), clientIP(r))
	if err != nil {
		log.Error("Rate limiter unavailable: %v", err)
		return true
	}
	return ok
}

func (s *Server) touchSession(r *http.Request, updates session.Data) {
	if s.sessions == nil {
		return
	}
	sessionID := r.Header.Get("X-Session-ID")
	if sessionID == "" {
		return
	}
	_, ok, err := s.sessions.Touch(r.Context(), sessionID, updates)
	if err != nil {
		log.Error("Failed to touch session %s: %v", sessionID, err)
		return
	}
	if !ok {
		now := time.Now().UTC().Format(time.RFC3339)
		data := session.Data{"created_at": now, "last_seen_at": now}
		for k, v := range updates {
			data[k] = v
		}
		if err := s.sessions.Save(r.Context(), sessionID, data); err != nil {
			log.Error("Failed to create session %s: %v", sessionID, err)
		}
	}
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// extractVideoID pulls the video identifier out of a watch URL. Supports
// youtu.be short links and ?v= query parameters.
func extractVideoID(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(parsed.Host, "www.")
	if host == "youtu.be" {
		return strings.Trim(parsed.Path, "/")
	}
	return parsed.Query().Get("v")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
