package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mailpilot-dev/mailpilot/internal/ai"
	"github.com/mailpilot-dev/mailpilot/internal/auth"
	"github.com/mailpilot-dev/mailpilot/internal/config"
	"github.com/mailpilot-dev/mailpilot/internal/provider"
	gmailprov "github.com/mailpilot-dev/mailpilot/internal/provider/gmail"
	outlookprov "github.com/mailpilot-dev/mailpilot/internal/provider/outlook"
	"github.com/mailpilot-dev/mailpilot/internal/queue"
	"github.com/mailpilot-dev/mailpilot/internal/store"
	"github.com/mailpilot-dev/mailpilot/internal/worker"
)

type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ConnectRequest struct {
	Code string `json:"code" binding:"required"`
}

type SendEmailRequest struct {
	To      []string `json:"to" binding:"required"`
	Subject string   `json:"subject" binding:"required"`
	Body    string   `json:"body" binding:"required"`
}

type DraftReplyRequest struct {
	EmailID   string `json:"emailId" binding:"required"`
	Shorthand string `json:"shorthand" binding:"required"`
}

type BatchSummarizeRequest struct {
	EmailIDs []string `json:"emailIds" binding:"required,min=1"`
}

// jobEnqueuer is the queue surface the HTTP layer needs.
type jobEnqueuer interface {
	Enqueue(topic queue.Topic, payload interface{}, msgID string) error
}

// server bundles the dependencies the HTTP routes close over.
type server struct {
	store     *store.Store
	queue     jobEnqueuer
	ai        *ai.Service
	auth      *auth.Service
	identity  *auth.IdentityClient
	jwtSecret []byte
	jwtExpiry time.Duration
	mailboxes provider.Factory
}

// newMailbox selects the concrete provider adapter.
func newMailbox(ctx context.Context, name provider.Name, accessToken string) (provider.Mailbox, error) {
	switch name {
	case provider.Gmail:
		return gmailprov.New(ctx, accessToken)
	case provider.Outlook:
		return outlookprov.New(accessToken)
	default:
		return nil, fmt.Errorf("unsupported provider %q", name)
	}
}

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	q, err := queue.Connect(cfg.NATSURL)
	if err != nil {
		log.Fatal(err)
	}
	defer q.Close()

	if err := q.EnsureStreams(ctx); err != nil {
		log.Fatal(err)
	}

	llm := ai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	aiService := ai.NewService(llm)

	syncWorker := worker.NewSyncWorker(st, newMailbox)
	aiWorker := worker.NewAIWorker(st, aiService)

	if err := q.Consume(ctx, queue.TopicSync, queue.SyncConcurrency, queue.SyncJobTimeout, syncWorker.Handle); err != nil {
		log.Fatal(err)
	}
	if err := q.Consume(ctx, queue.TopicAI, queue.AIConcurrency, queue.AIJobTimeout, aiWorker.Handle); err != nil {
		log.Fatal(err)
	}

	go scheduleIncrementalSyncs(ctx, st, q, cfg.SyncInterval)

	srv := &server{
		store:     st,
		queue:     q,
		ai:        aiService,
		auth:      auth.NewService(st),
		identity:  auth.NewIdentityClient(cfg.IdentityURL),
		jwtSecret: []byte(cfg.JWTSecret),
		jwtExpiry: cfg.JWTExpiry,
		mailboxes: newMailbox,
	}

	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: srv.router()}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()
	log.Printf("listening on :%s", cfg.Port)

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
}

func (s *server) router() *gin.Engine {
	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/register", func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := s.auth.Register(c.Request.Context(), req.Email, req.Name, req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, user)
	})

	r.POST("/login", func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := s.auth.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		token, err := auth.IssueToken(s.jwtSecret, user, s.jwtExpiry)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
	})

	api := r.Group("/api")
	api.Use(auth.Middleware(s.jwtSecret))

	api.GET("/auth/me", func(c *gin.Context) {
		user, err := s.store.GetUser(c.Request.Context(), c.GetString("user_id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusOK, user)
	})

	// Stores the provider credential handed back by the identity service
	// after the user finished the OAuth dance there.
	api.POST("/auth/:provider/connect", func(c *gin.Context) {
		name, err := provider.Parse(c.Param("provider"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var req ConnectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		cred, err := s.identity.Exchange(c.Request.Context(), string(name), req.Code)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}

		userID := c.GetString("user_id")
		if err := s.store.UpdateUserCredentials(c.Request.Context(), userID, string(name), cred.AccessToken, cred.RefreshToken, cred.Expiry); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"success": true, "provider": name})
	})

	api.GET("/emails", func(c *gin.Context) {
		userID := c.GetString("user_id")
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		if page < 1 {
			page = 1
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if limit < 1 || limit > 200 {
			limit = 50
		}
		unreadOnly := c.Query("unreadOnly") == "true"

		emails, err := s.store.ListEmails(c.Request.Context(), userID, limit, (page-1)*limit, unreadOnly)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		total, err := s.store.CountEmails(c.Request.Context(), userID, unreadOnly)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		items := make([]gin.H, 0, len(emails))
		for _, e := range emails {
			summary, err := s.store.GetSummary(c.Request.Context(), e.ID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			items = append(items, gin.H{"email": e, "summary": summary})
		}

		c.JSON(http.StatusOK, gin.H{
			"emails": items,
			"pagination": gin.H{
				"page":  page,
				"limit": limit,
				"total": total,
				"pages": (total + limit - 1) / limit,
			},
		})
	})

	api.GET("/emails/:id", func(c *gin.Context) {
		email, ok := s.loadOwnedEmail(c)
		if !ok {
			return
		}

		summary, err := s.store.GetSummary(c.Request.Context(), email.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		drafts, err := s.store.ListDraftReplies(c.Request.Context(), email.ID, 5)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"email": email, "summary": summary, "draftReplies": drafts})
	})

	api.POST("/emails/sync", func(c *gin.Context) {
		userID := c.GetString("user_id")
		user, err := s.store.GetUser(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if user == nil || user.Provider == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no email provider connected"})
			return
		}

		job := queue.SyncJob{
			UserID:   user.ID,
			Provider: user.Provider,
			SyncType: queue.SyncTypeFull,
		}
		if err := s.queue.Enqueue(queue.TopicSync, job, uuid.NewString()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"message": "email sync started"})
	})

	api.GET("/sync-runs", func(c *gin.Context) {
		runs, err := s.store.ListSyncRuns(c.Request.Context(), c.GetString("user_id"), 20)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"syncRuns": runs})
	})

	api.GET("/sync-runs/:id", func(c *gin.Context) {
		run, err := s.store.GetSyncRun(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if run == nil || run.UserID != c.GetString("user_id") {
			c.JSON(http.StatusNotFound, gin.H{"error": "sync run not found"})
			return
		}
		c.JSON(http.StatusOK, run)
	})

	api.PATCH("/emails/:id/read", func(c *gin.Context) {
		userID := c.GetString("user_id")
		if err := s.store.MarkEmailRead(c.Request.Context(), userID, c.Param("id")); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	api.POST("/emails/send", func(c *gin.Context) {
		var req SendEmailRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		userID := c.GetString("user_id")
		user, err := s.store.GetUser(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if user == nil || user.AccessToken == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no email provider connected"})
			return
		}

		name, err := provider.Parse(user.Provider)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		mailbox, err := s.mailboxes(c.Request.Context(), name, user.AccessToken)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if err := mailbox.Send(c.Request.Context(), req.To, req.Subject, req.Body); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "email sent"})
	})

	api.POST("/ai/summarize/:id", func(c *gin.Context) {
		email, ok := s.loadOwnedEmail(c)
		if !ok {
			return
		}

		existing, err := s.store.GetSummary(c.Request.Context(), email.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if existing != nil {
			c.JSON(http.StatusOK, existing)
			return
		}

		task := queue.AITask{
			EmailID:  email.ID,
			UserID:   c.GetString("user_id"),
			TaskType: queue.TaskSummarize,
		}
		// Deduped by email id so double-clicks collapse into one job.
		msgID := "summarize|" + email.ID
		if err := s.queue.Enqueue(queue.TopicAI, task, msgID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"message": "summarization started"})
	})

	// One task per caller-owned email; ids that are missing or belong to
	// someone else are dropped silently. The worker's existence check keeps
	// already-summarized emails cheap.
	api.POST("/ai/batch-summarize", func(c *gin.Context) {
		var req BatchSummarizeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		userID := c.GetString("user_id")
		queued := 0
		for _, id := range req.EmailIDs {
			email, err := s.store.GetEmail(c.Request.Context(), id)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if email == nil || email.UserID != userID {
				continue
			}

			task := queue.AITask{
				EmailID:  email.ID,
				UserID:   userID,
				TaskType: queue.TaskSummarize,
			}
			if err := s.queue.Enqueue(queue.TopicAI, task, "summarize|"+email.ID); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			queued++
		}

		c.JSON(http.StatusAccepted, gin.H{"message": "batch summarization started", "queued": queued})
	})

	api.POST("/ai/classify/:id", func(c *gin.Context) {
		email, ok := s.loadOwnedEmail(c)
		if !ok {
			return
		}

		task := queue.AITask{
			EmailID:  email.ID,
			UserID:   c.GetString("user_id"),
			TaskType: queue.TaskClassify,
		}
		if err := s.queue.Enqueue(queue.TopicAI, task, uuid.NewString()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"message": "classification started"})
	})

	// Draft generation stays synchronous: the caller is waiting on the
	// response and a human edits the draft before anything is sent.
	api.POST("/ai/draft-reply", func(c *gin.Context) {
		var req DraftReplyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		userID := c.GetString("user_id")
		email, err := s.store.GetEmail(c.Request.Context(), req.EmailID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if email == nil || email.UserID != userID {
			c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
			return
		}

		profile, err := s.store.GetToneProfile(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		reply, tone, err := s.ai.GenerateReply(c.Request.Context(), email.Subject, email.Body, req.Shorthand, profile)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}

		draft := &store.DraftReply{
			EmailID:        email.ID,
			Shorthand:      req.Shorthand,
			GeneratedReply: reply,
			Tone:           tone,
		}
		if err := s.store.CreateDraftReply(c.Request.Context(), draft); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, draft)
	})

	api.POST("/ai/learn-tone", func(c *gin.Context) {
		userID := c.GetString("user_id")
		task := queue.AITask{
			UserID:   userID,
			TaskType: queue.TaskLearnTone,
		}
		msgID := "learn_tone|" + userID
		if err := s.queue.Enqueue(queue.TopicAI, task, msgID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"message": "tone learning started"})
	})

	api.GET("/ai/tone-profile", func(c *gin.Context) {
		profile, err := s.store.GetToneProfile(c.Request.Context(), c.GetString("user_id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if profile == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no tone profile yet"})
			return
		}
		c.JSON(http.StatusOK, profile)
	})

	return r
}

// loadOwnedEmail fetches the :id email and checks it belongs to the caller.
func (s *server) loadOwnedEmail(c *gin.Context) (*store.Email, bool) {
	email, err := s.store.GetEmail(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	if email == nil || email.UserID != c.GetString("user_id") {
		c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
		return nil, false
	}
	return email, true
}

// scheduleIncrementalSyncs enqueues an incremental sync job per connected
// user on a fixed interval. The jobs go through the queue like any other
// trigger; nothing syncs inline here.
func scheduleIncrementalSyncs(ctx context.Context, st *store.Store, q *queue.Queue, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			users, err := st.ListConnectedUsers(ctx)
			if err != nil {
				log.Printf("[scheduler] error listing users: %v", err)
				continue
			}

			for _, u := range users {
				job := queue.SyncJob{
					UserID:   u.ID,
					Provider: u.Provider,
					SyncType: queue.SyncTypeIncremental,
				}
				last, err := st.LastSuccessfulSyncTime(ctx, u.ID)
				if err != nil {
					log.Printf("[scheduler] error loading last sync for %s: %v", u.ID, err)
					continue
				}
				if last == nil {
					job.SyncType = queue.SyncTypeFull
				} else {
					job.LastSyncTime = last
				}

				// One job per user per tick, deduped by the tick timestamp.
				msgID := fmt.Sprintf("sched|%s|%d", u.ID, tick.Unix())
				if err := q.Enqueue(queue.TopicSync, job, msgID); err != nil {
					log.Printf("[scheduler] error enqueuing sync for %s: %v", u.ID, err)
				}
			}
		}
	}
}
