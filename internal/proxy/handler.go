// Package proxy implements the per-request inspection pipeline: blocklist
// lookup, rule evaluation, decision, logging, and transparent forwarding to
// the upstream origin.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mini-waf/waf-go/internal/db"
	"github.com/mini-waf/waf-go/internal/engine"
	"github.com/mini-waf/waf-go/internal/metrics"
)

// upstreamClient is shared by all requests: pooled connections, redirects
// followed, 30 second total timeout per upstream call.
var upstreamClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	},
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return fmt.Errorf("too many redirects")
		}
		return nil
	},
}

// hopByHopHeaders are connection-scoped per RFC 7230 §6.1 and never cross
// the proxy in either direction.
var hopByHopHeaders = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailers":            true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

// RuleSource provides the current enabled rule set. Re-read on every
// request; there is no request-scoped snapshot.
type RuleSource interface {
	ListEnabledRules(ctx context.Context) ([]db.Rule, error)
}

// BlockChecker consults the soft and hard blocklist tiers.
type BlockChecker interface {
	Check(ctx context.Context, ip string) (bool, error)
}

// Recorder persists a decision and publishes it to realtime subscribers.
type Recorder interface {
	Record(ctx context.Context, entry *db.AttackLog) error
}

// Handler runs the pipeline for every path not claimed by the admin or
// health surface.
type Handler struct {
	rules      RuleSource
	blocklist  BlockChecker
	engine     *engine.Engine
	recorder   Recorder
	backendURL string
	logger     *slog.Logger
}

// NewHandler creates the pipeline handler. backendURL is the origin base
// URL without a trailing slash.
func NewHandler(rules RuleSource, blocklist BlockChecker, eng *engine.Engine, recorder Recorder, backendURL string, logger *slog.Logger) *Handler {
	return &Handler{
		rules:      rules,
		blocklist:  blocklist,
		engine:     eng,
		recorder:   recorder,
		backendURL: strings.TrimRight(backendURL, "/"),
		logger:     logger,
	}
}

// ServeHTTP runs the nine pipeline steps in order. The log write always
// happens before any response byte is committed.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := clientIP(r)
	path := r.URL.Path

	// Read the body fully; keep the raw bytes for forwarding and a lossy
	// UTF-8 view for inspection and logging.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Warn("failed to read request body", "ip", ip, "err", err)
	}
	r.Body.Close()
	decoded := strings.ToValidUTF8(string(body), "�")

	blocked, err := h.blocklist.Check(ctx, ip)
	if err != nil {
		h.logger.Error("blocklist lookup failed", "ip", ip, "err", err)
		jsonDetail(w, http.StatusInternalServerError, map[string]any{"detail": "WAF internal error"})
		return
	}
	if blocked {
		metrics.BlockedIPRejections.Inc()
		h.record(r, ip, path, decoded, 100, []string{"IP_BLOCKED"}, engine.ActionBlock)
		jsonDetail(w, http.StatusForbidden, map[string]any{"detail": "Your IP has been blocked."})
		return
	}

	rules, err := h.rules.ListEnabledRules(ctx)
	if err != nil {
		h.logger.Error("failed to load rules", "err", err)
		jsonDetail(w, http.StatusInternalServerError, map[string]any{"detail": "WAF internal error"})
		return
	}

	res := h.engine.Inspect(rules, r.Method, path, r.URL.RawQuery, decoded)

	// Log before responding, allowed and blocked alike, so a crash between
	// decide and respond still leaves a record.
	h.record(r, ip, path, decoded, res.Score, res.Types, res.Action)

	if res.Action == engine.ActionBlock {
		jsonDetail(w, http.StatusForbidden, map[string]any{
			"detail":       "Request blocked by WAF",
			"threat_types": res.Types,
		})
		return
	}

	h.forward(w, r, ip, path, body)
}

// forward relays the request to the origin and streams the response back.
func (h *Handler) forward(w http.ResponseWriter, r *http.Request, ip, path string, body []byte) {
	target := h.backendURL + path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	upReq, err := http.NewRequestWithContext(r.Context(), r.Method, target, bytes.NewReader(body))
	if err != nil {
		jsonDetail(w, http.StatusBadGateway, map[string]any{
			"detail": fmt.Sprintf("Backend unreachable: %v", err),
		})
		return
	}

	// Copy request headers minus hop-by-hop and the client's Host; the
	// original host travels in X-Forwarded-Host instead.
	for key, values := range r.Header {
		lk := strings.ToLower(key)
		if hopByHopHeaders[lk] || lk == "host" {
			continue
		}
		for _, v := range values {
			upReq.Header.Add(key, v)
		}
	}
	upReq.Header.Set("X-Forwarded-For", ip)
	upReq.Header.Set("X-Real-IP", ip)
	upReq.Header.Set("X-Forwarded-Host", r.Host)

	resp, err := upstreamClient.Do(upReq)
	if err != nil {
		metrics.UpstreamErrors.Inc()
		h.logger.Warn("upstream request failed", "target", target, "err", err)
		jsonDetail(w, http.StatusBadGateway, map[string]any{
			"detail": fmt.Sprintf("Backend unreachable: %v", err),
		})
		return
	}
	defer resp.Body.Close()

	// Relay headers. Content-Encoding and Content-Length are dropped as
	// well: the client has already decompressed the body and the server
	// recomputes the length.
	for key, values := range resp.Header {
		lk := strings.ToLower(key)
		if hopByHopHeaders[lk] || lk == "content-encoding" || lk == "content-length" {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Warn("relay interrupted", "target", target, "err", err)
	}
}

// record builds and commits the attack log row. A failed write never fails
// the request; the loss is logged and counted in metrics by the recorder.
// The write runs on a context detached from the request: a client that
// disconnects mid-insert must not abort an already-issued log write.
func (h *Handler) record(r *http.Request, ip, path, body string, score int, types []string, action string) {
	entry := &db.AttackLog{
		IPAddress:   ip,
		Method:      r.Method,
		Endpoint:    path,
		Headers:     headerSnapshot(r.Header),
		ThreatScore: score,
		ActionTaken: action,
		ThreatTypes: types,
	}
	if body != "" {
		entry.RequestBody = &body
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
	defer cancel()
	if err := h.recorder.Record(ctx, entry); err != nil {
		h.logger.Error("attack log write failed", "ip", ip, "endpoint", path, "err", err)
	}
}

// clientIP resolves the client address: X-Real-IP wins, then the transport
// peer, then the literal "unknown".
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// headerSnapshot serializes the request headers as a flat JSON object,
// multi-valued headers joined with commas.
func headerSnapshot(header http.Header) json.RawMessage {
	flat := make(map[string]string, len(header))
	for key, values := range header {
		flat[strings.ToLower(key)] = strings.Join(values, ", ")
	}
	data, err := json.Marshal(flat)
	if err != nil {
		return nil
	}
	return data
}

func jsonDetail(w http.ResponseWriter, code int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
