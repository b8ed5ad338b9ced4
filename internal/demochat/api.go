package demochat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/raysh454/chatprobe/internal/logging"
)

const (
	maxMessages      = 20
	maxUserMessageLn = 500
)

var botUserAgent = regexp.MustCompile(`(?i)bot|spider|crawler|scraper|python|curl|wget|postman|insomnia`)

type chatMessage struct {
	Role    any `json:"role"`
	Content any `json:"content"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// cors rejects unknown cross-origin callers and answers the rest with the
// usual access-control headers.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if !s.originAllowed(origin, r) {
				writeError(w, http.StatusForbidden, "Forbidden")
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string, r *http.Request) bool {
	if origin == "http://"+r.Host || origin == "https://"+r.Host {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, origin)
}

// validate mirrors the checks of the hosted chat worker and returns the
// client-facing error, or "" when the conversation is acceptable.
func validate(msgs []chatMessage) string {
	if len(msgs) > maxMessages {
		return "Conversation too long. Please start a new chat."
	}
	for _, m := range msgs {
		role, _ := m.Role.(string)
		content, ok := m.Content.(string)
		if role == "" || !ok || content == "" {
			return "Invalid message format"
		}
		if role != "user" && role != "assistant" {
			return "Invalid message role"
		}
		if role == "user" && utf8.RuneCountInString(content) > maxUserMessageLn {
			return fmt.Sprintf("Message too long (max %d characters)", maxUserMessageLn)
		}
	}
	return ""
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ua := r.UserAgent()
	if ua == "" || botUserAgent.MatchString(ua) {
		writeError(w, http.StatusForbidden, "Blocked")
		return
	}

	ip := clientIP(r)
	if ok, msg, retry := s.limiter.allow(ip); !ok {
		w.Header().Set("Retry-After", retry)
		writeError(w, http.StatusTooManyRequests, msg)
		return
	}

	var body struct {
		Messages json.RawMessage `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	raw := bytes.TrimSpace(body.Messages)
	if len(raw) == 0 || raw[0] != '[' {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	var msgs []chatMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid message format")
		return
	}
	if msg := validate(msgs); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	var last string
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			last, _ = msgs[i].Content.(string)
			break
		}
	}
	s.stream(w, r, replyFor(last))
}

// stream writes reply as server-sent events, a few words per event.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, reply string) {
	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	chunks := chunkWords(reply, s.cfg.ChunkWords)
	for i, c := range chunks {
		if i > 0 && s.cfg.ChunkDelay > 0 {
			select {
			case <-time.After(s.cfg.ChunkDelay):
			case <-r.Context().Done():
				s.logger.Warn("client went away mid-stream", logging.Field{Key: "sent", Value: i})
				return
			}
		}
		payload, _ := json.Marshal(map[string]string{"text": c})
		fmt.Fprintf(w, "data: %s\n\n", payload)
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
	s.logger.Info("reply streamed", logging.Field{Key: "chunks", Value: len(chunks)})
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// clientLimiter keeps a per-minute and a per-hour token bucket per client.
type clientLimiter struct {
	perMinute, perHour int

	mu      sync.Mutex
	clients map[string]*clientBuckets
}

type clientBuckets struct {
	minute *rate.Limiter
	hour   *rate.Limiter
}

func newClientLimiter(perMinute, perHour int) *clientLimiter {
	return &clientLimiter{perMinute: perMinute, perHour: perHour, clients: make(map[string]*clientBuckets)}
}

func (l *clientLimiter) buckets(ip string) *clientBuckets {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.clients[ip]
	if !ok {
		b = &clientBuckets{}
		if l.perMinute > 0 {
			b.minute = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)
		}
		if l.perHour > 0 {
			b.hour = rate.NewLimiter(rate.Every(time.Hour/time.Duration(l.perHour)), l.perHour)
		}
		l.clients[ip] = b
	}
	return b
}

// allow reports whether ip may send another message; when it may not, it
// also returns the error text and the Retry-After value.
func (l *clientLimiter) allow(ip string) (bool, string, string) {
	b := l.buckets(ip)
	if b.minute != nil && !b.minute.Allow() {
		return false, "Too many messages. Please wait a moment.", "60"
	}
	if b.hour != nil && !b.hour.Allow() {
		return false, "Hourly limit reached. Try again later.", "3600"
	}
	return true, "", ""
}
