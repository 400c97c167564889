package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/schaermu/bundlewatchd/internal/config"
)

// GitHubPullRequestEvent represents the relevant fields from a GitHub
// pull_request webhook
type GitHubPullRequestEvent struct {
	Action      string `json:"action"`
	Number      int    `json:"number"`
	PullRequest struct {
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
		Head struct {
			SHA string `json:"sha"`
		} `json:"head"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// RunFunc executes a report run for the given pull request number.
type RunFunc func(ctx context.Context, pr int) error

// Server implements the webhook HTTP server
type Server struct {
	cfg        *config.Config
	run        RunFunc
	logger     *slog.Logger
	secret     []byte
	runMu      sync.Mutex // guards runActive and pendingPR
	runActive  bool       // whether a report run is currently in progress
	pendingPR  int        // PR queued behind the current run, 0 when none
	debounce   *debouncer
}

// debouncer implements debouncing for webhook events
type debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	delay    time.Duration
	callback func()
}

// triggerActions are the pull_request actions that warrant a fresh report.
var triggerActions = map[string]bool{
	"opened":      true,
	"synchronize": true,
	"reopened":    true,
}

// NewServer creates a new webhook server
func NewServer(cfg *config.Config, run RunFunc, logger *slog.Logger) (*Server, error) {
	// Load webhook secret from file
	secret, err := os.ReadFile(cfg.Serve.GitHubWebhookSecretFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook secret: %w", err)
	}

	// Trim any whitespace/newlines from secret
	secret = []byte(strings.TrimSpace(string(secret)))

	s := &Server{
		cfg:    cfg,
		run:    run,
		logger: logger,
		secret: secret,
	}

	// Initialize debouncer with 2 second delay
	s.debounce = &debouncer{
		delay: 2 * time.Second,
	}

	return s, nil
}

// Start starts the webhook HTTP server.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebhook)

	server := &http.Server{
		Addr:              s.cfg.Serve.ListenAddr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("webhook server starting", "addr", s.cfg.Serve.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutting down webhook server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleWebhook handles incoming GitHub webhook requests
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	// Only accept POST requests
	if r.Method != http.MethodPost {
		s.logger.Warn("rejecting non-POST request", "method", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Check content type
	contentType := r.Header.Get("Content-Type")
	if contentType != "application/json" {
		s.logger.Warn("rejecting request with invalid content type", "content_type", contentType)
		http.Error(w, "Invalid content type", http.StatusBadRequest)
		return
	}

	// Read body
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MB limit
	if err != nil {
		s.logger.Error("failed to read request body", "error", err)
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}
	defer func() {
		_ = r.Body.Close()
	}()

	// Verify signature
	signature := r.Header.Get("X-Hub-Signature-256")
	if !s.verifySignature(body, signature) {
		s.logger.Warn("rejecting request with invalid signature")
		http.Error(w, "Invalid signature", http.StatusForbidden)
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	s.logger.Info("received webhook", "event", eventType)

	if eventType != "pull_request" {
		s.logger.Info("ignoring event type", "event", eventType)
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "Event type not configured for reporting\n")
		return
	}

	// Parse pull_request event
	var event GitHubPullRequestEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.logger.Error("failed to parse webhook payload", "error", err)
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	if !triggerActions[event.Action] {
		s.logger.Info("ignoring pull_request action", "action", event.Action)
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "Action not configured for reporting\n")
		return
	}

	if !s.isBaseRefAllowed(event.PullRequest.Base.Ref) {
		s.logger.Info("ignoring disallowed base ref", "base_ref", event.PullRequest.Base.Ref)
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "Base ref not configured for reporting\n")
		return
	}

	s.logger.Info("webhook accepted",
		"action", event.Action,
		"pr", event.Number,
		"base_ref", event.PullRequest.Base.Ref,
		"head", event.PullRequest.Head.SHA,
		"repo", event.Repository.FullName)

	// Trigger debounced report run
	pr := event.Number
	s.debounce.trigger(func() {
		s.performRun(context.Background(), pr)
	})

	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "Report run triggered\n")
}

// verifySignature verifies the GitHub webhook signature
func (s *Server) verifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	// GitHub signature format: sha256=<hex>
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	// Compute expected signature
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	// Constant-time comparison
	return hmac.Equal([]byte(signature), []byte(expected))
}

// isBaseRefAllowed checks if the pull request base ref is in the allowed list
func (s *Server) isBaseRefAllowed(ref string) bool {
	if len(s.cfg.Serve.AllowedBaseRefs) == 0 {
		return true // no filter configured
	}

	for _, allowed := range s.cfg.Serve.AllowedBaseRefs {
		if ref == allowed {
			return true
		}
	}
	return false
}

// performRun executes a report run with single-flight semantics. If a run
// is already in progress, at most one additional run is queued (the most
// recent PR wins); further concurrent requests are dropped to avoid
// unbounded goroutine pile-up.
func (s *Server) performRun(ctx context.Context, pr int) {
	s.runMu.Lock()
	if s.runActive {
		s.pendingPR = pr
		s.runMu.Unlock()
		s.logger.Info("report run already in progress, queuing pending re-run", "pr", pr)
		return
	}
	s.runActive = true
	s.runMu.Unlock()

	for {
		s.logger.Info("performing report run", "pr", pr)

		if err := s.run(ctx, pr); err != nil {
			s.logger.Error("report run failed", "pr", pr, "error", err)
		} else {
			s.logger.Info("report run completed", "pr", pr)
		}

		// Atomically check whether another run was requested while we were
		// busy. If not, release the running slot and stop; if yes, clear
		// the slot and loop to service that one pending request.
		s.runMu.Lock()
		if s.pendingPR == 0 {
			s.runActive = false
			s.runMu.Unlock()
			break
		}
		pr = s.pendingPR
		s.pendingPR = 0
		s.runMu.Unlock()

		s.logger.Info("re-running report due to pending request", "pr", pr)
	}
}

// trigger schedules the callback to run after the debounce delay
func (d *debouncer) trigger(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.callback = callback

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		cb := d.callback
		d.mu.Unlock()

		if cb != nil {
			cb()
		}
	})
}
