package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/jo-hoe/podify/internal/common"
	"github.com/jo-hoe/podify/internal/config"
	"github.com/jo-hoe/podify/internal/feed"
	"github.com/jo-hoe/podify/internal/jobs"
	"github.com/jo-hoe/podify/internal/podcast"
	"github.com/jo-hoe/podify/internal/storage"
)

// Runner executes a job inline and leaves it in a terminal status.
// Implemented by processor.Worker.
type Runner interface {
	Run(ctx context.Context, jobID string, cfg podcast.PodcastConfig) (*podcast.Result, error)
}

type Service struct {
	Log      *slog.Logger
	Cfg      *config.Config
	Store    jobs.Store
	Queue    *jobs.Queue
	Uploader *storage.Uploader
	Registry *feed.Registry
	Runner   Runner
}

// NewHTTPServer builds the http.Server with routes and middleware.
func NewHTTPServer(svc *Service) *http.Server {
	if svc.Log == nil {
		svc.Log = slog.New(slog.DiscardHandler)
	}
	r := mux.NewRouter()
	r.HandleFunc(common.PathHealthz, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	// Feed readers cannot send the API key.
	r.HandleFunc(common.PathFeed, svc.handleFeed).Methods(http.MethodGet)
	r.HandleFunc(common.PathEpisodes+"/{slug}/audio", svc.handleAudio).Methods(http.MethodGet, http.MethodHead)

	api := r.PathPrefix("/api/podcast").Subrouter()
	api.Use(svc.withCommon)
	api.HandleFunc(strings.TrimPrefix(common.PathGenerate, "/api/podcast"), svc.handleGenerate).Methods(http.MethodPost)
	api.HandleFunc(strings.TrimPrefix(common.PathProcess, "/api/podcast")+"/{jobId}", svc.handleProcess).Methods(http.MethodPost)
	api.HandleFunc(strings.TrimPrefix(common.PathStatus, "/api/podcast")+"/{jobId}", svc.handleStatus).Methods(http.MethodGet)
	api.HandleFunc(strings.TrimPrefix(common.PathEpisodes, "/api/podcast"), svc.handleEpisodes).Methods(http.MethodGet)

	var handler http.Handler = loggingMiddleware(recoveryMiddleware(r, svc.Log), svc.Log)
	if len(svc.Cfg.Server.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: svc.Cfg.Server.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", common.HeaderAPIKey, common.HeaderPrefer},
		}).Handler(handler)
	}

	return &http.Server{
		Addr:         svc.Cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  svc.Cfg.Server.ReadTimeout,
		WriteTimeout: svc.Cfg.Server.WriteTimeout,
		IdleTimeout:  svc.Cfg.Server.IdleTimeout,
	}
}

func (svc *Service) withCommon(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Enforce API key if configured
		if key := strings.TrimSpace(svc.Cfg.Server.APIKey); key != "" {
			if r.Header.Get(common.HeaderAPIKey) != key {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		// Enforce max body size
		max := safeInt64(svc.Cfg.Server.MaxUploadSize)
		if max > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, max)
		}
		next.ServeHTTP(w, r)
	})
}

type generateRequest struct {
	Content      string              `json:"content"`
	Title        string              `json:"title"`
	Format       podcast.Format      `json:"format"`
	Duration     podcast.Duration    `json:"duration"`
	Tone         podcast.Tone        `json:"tone"`
	Voices       string              `json:"voices"`
	TTS          podcast.TTSProvider `json:"tts"`
	LLM          podcast.LLMProvider `json:"llm"`
	IncludeMusic bool                `json:"includeMusic"`
	Instructions string              `json:"instructions"`

	// Async creates the job without starting it; the caller triggers it
	// through the process endpoint.
	Async       bool   `json:"async"`
	CallbackURL string `json:"callbackUrl"`

	source  string
	cleanup func() error
}

func (req generateRequest) config() podcast.PodcastConfig {
	return podcast.PodcastConfig{
		Content:            req.Content,
		Title:              strings.TrimSpace(req.Title),
		Format:             req.Format,
		Duration:           req.Duration,
		Tone:               req.Tone,
		Voices:             podcast.PresetVoices(req.Voices),
		TTSProvider:        req.TTS,
		LLMProvider:        req.LLM,
		IncludeMusic:       req.IncludeMusic,
		CustomInstructions: strings.TrimSpace(req.Instructions),
		Source:             req.source,
	}.WithDefaults()
}

type acceptedResponse struct {
	JobID      string `json:"jobId"`
	StatusURL  string `json:"statusUrl"`
	ProcessURL string `json:"processUrl,omitempty"`
}

func (svc *Service) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if full, err := svc.Store.IsAtCapacity(ctx); err != nil {
		svc.Log.Error("capacity check failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	} else if full {
		writeError(w, http.StatusTooManyRequests, "Too many concurrent jobs. Try again shortly.")
		return
	}

	req, err := svc.decodeGenerate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Released here unless a queued worker takes ownership.
	cleanup := req.cleanup
	defer func() {
		if cleanup != nil {
			if err := cleanup(); err != nil {
				svc.Log.Warn("upload cleanup failed", "err", err)
			}
		}
	}()

	if req.LLM == "" {
		req.LLM = podcast.LLMProvider(svc.Cfg.LLM.Provider)
	}
	if req.TTS == "" {
		req.TTS = podcast.TTSProvider(svc.Cfg.TTS.Provider)
	}
	if len(strings.TrimSpace(req.Content)) < common.MinContentLength {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Content too short (< %d chars)", common.MinContentLength))
		return
	}
	if req.CallbackURL != "" {
		if _, err := url.ParseRequestURI(req.CallbackURL); err != nil {
			writeError(w, http.StatusBadRequest, "invalid callbackUrl")
			return
		}
	}
	cfg := req.config()
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := svc.Store.Create(ctx)
	if err != nil {
		svc.Log.Error("persist job", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := svc.Store.Update(ctx, job.ID, jobs.Patch{Config: &cfg}); err != nil {
		svc.Log.Error("persist job config", "job_id", job.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	log := svc.Log.With("job_id", job.ID)
	log.Info("job created", "title", cfg.Title, "source", cfg.Source)

	switch {
	case req.Async:
		writeJSON(w, http.StatusAccepted, acceptedResponse{
			JobID:      job.ID,
			StatusURL:  common.PathStatus + "/" + job.ID,
			ProcessURL: common.PathProcess + "/" + job.ID,
		})
	case preferAsync(r):
		if !svc.enqueue(w, jobs.WorkItem{JobID: job.ID, Config: cfg, CallbackURL: req.CallbackURL, Cleanup: cleanup}) {
			return
		}
		// The worker owns the upload now.
		cleanup = nil
	default:
		svc.runInline(w, r, job.ID, cfg)
	}
}

func (svc *Service) decodeGenerate(r *http.Request) (generateRequest, error) {
	var req generateRequest
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "multipart/form-data" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, fmt.Errorf("invalid json body: %w", err)
		}
		req.source = "text"
		return req, nil
	}

	max := safeInt64(svc.Cfg.Server.MaxUploadSize)
	if err := r.ParseMultipartForm(max); err != nil {
		return req, fmt.Errorf("invalid form: %w", err)
	}
	req.Content = r.FormValue("content")
	req.Title = r.FormValue("title")
	req.Format = podcast.Format(r.FormValue("format"))
	req.Duration = podcast.Duration(r.FormValue("duration"))
	req.Tone = podcast.Tone(r.FormValue("tone"))
	req.Voices = r.FormValue("voices")
	req.TTS = podcast.TTSProvider(r.FormValue("tts"))
	req.LLM = podcast.LLMProvider(r.FormValue("llm"))
	req.IncludeMusic = formBool(r.FormValue("includeMusic"))
	req.Instructions = r.FormValue("instructions")
	req.Async = formBool(r.FormValue("async"))
	req.CallbackURL = strings.TrimSpace(r.FormValue("callbackUrl"))
	req.source = "text"

	if files := r.MultipartForm.File["file"]; len(files) > 0 {
		up, err := svc.Uploader.SaveMultipartText(files[0], max)
		if err != nil {
			return req, fmt.Errorf("upload failed: %w", err)
		}
		req.Content = up.Content
		req.cleanup = up.Cleanup
		req.source = "file"
		if strings.TrimSpace(req.Title) == "" {
			base := filepath.Base(files[0].Filename)
			req.Title = strings.ReplaceAll(strings.TrimSuffix(base, filepath.Ext(base)), "-", " ")
		}
	}
	if strings.TrimSpace(req.Content) == "" {
		return req, errors.New("provide content or file")
	}
	return req, nil
}

func (svc *Service) handleProcess(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["jobId"]
	job, ok := svc.Store.Get(r.Context(), id)
	if !ok {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	if job.Status != jobs.StatusPending {
		writeError(w, http.StatusConflict, "Job already started")
		return
	}
	if job.Config == nil {
		writeError(w, http.StatusBadRequest, "Job has no config")
		return
	}
	if preferAsync(r) {
		svc.enqueue(w, jobs.WorkItem{JobID: job.ID, Config: *job.Config})
		return
	}
	svc.runInline(w, r, job.ID, *job.Config)
}

// enqueue hands the job to the background queue and writes 202, or marks the
// job failed and writes 503 when the queue cannot take it.
func (svc *Service) enqueue(w http.ResponseWriter, item jobs.WorkItem) bool {
	if svc.Queue == nil {
		writeError(w, http.StatusServiceUnavailable, "background processing disabled")
		return false
	}
	if err := svc.Queue.Enqueue(item); err != nil {
		svc.Log.Warn("enqueue failed", "job_id", item.JobID, "err", err)
		_ = svc.Store.Update(context.Background(), item.JobID, jobs.Patch{
			Status: jobs.Ptr(jobs.StatusError),
			Error:  jobs.Ptr(err.Error()),
		})
		writeError(w, http.StatusServiceUnavailable, "queue full, try later")
		return false
	}
	svc.Log.Info("job enqueued", "job_id", item.JobID)
	writeJSON(w, http.StatusAccepted, acceptedResponse{
		JobID:     item.JobID,
		StatusURL: common.PathStatus + "/" + item.JobID,
	})
	return true
}

// runInline generates the episode on the request goroutine. A started job
// runs to completion even if the client goes away.
func (svc *Service) runInline(w http.ResponseWriter, r *http.Request, jobID string, cfg podcast.PodcastConfig) {
	res, err := svc.Runner.Run(context.WithoutCancel(r.Context()), jobID, cfg)
	if err != nil {
		svc.Log.Error("generation failed", "job_id", jobID, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"jobId":  jobID,
			"status": jobs.StatusError,
			"error":  err.Error(),
		})
		return
	}
	svc.Log.Info("job processed (sync)", "job_id", jobID)
	writeJSON(w, http.StatusOK, map[string]any{
		"jobId":  jobID,
		"status": jobs.StatusComplete,
		"result": svc.resultView(res),
	})
}

type resultView struct {
	Slug            string               `json:"slug"`
	RemoteURL       string               `json:"remoteUrl,omitempty"`
	AudioURL        string               `json:"audioUrl"`
	Transcript      []podcast.ScriptLine `json:"transcript"`
	DurationSeconds float64              `json:"durationSeconds"`
	WordCount       int                  `json:"wordCount"`
	CostUSD         float64              `json:"costUsd"`
}

func (svc *Service) resultView(res *podcast.Result) *resultView {
	if res == nil {
		return nil
	}
	audioURL := res.RemoteURL
	if audioURL == "" && res.Slug != "" {
		audioURL = svc.Cfg.Server.BaseURL + feed.AudioPath(res.Slug)
	}
	return &resultView{
		Slug:            res.Slug,
		RemoteURL:       res.RemoteURL,
		AudioURL:        audioURL,
		Transcript:      res.Transcript,
		DurationSeconds: res.DurationSeconds,
		WordCount:       res.WordCount,
		CostUSD:         res.CostUSD,
	}
}

type statusView struct {
	ID        string        `json:"id"`
	Status    jobs.Status   `json:"status"`
	Progress  int           `json:"progress"`
	Stage     podcast.Stage `json:"stage,omitempty"`
	Message   string        `json:"message"`
	CreatedAt time.Time     `json:"createdAt"`
	Result    *resultView   `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
}

func (svc *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := svc.Store.Get(r.Context(), mux.Vars(r)["jobId"])
	if !ok {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	out := statusView{
		ID:        job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		Stage:     job.Stage,
		Message:   job.Message,
		CreatedAt: job.CreatedAt,
		Error:     job.Error,
	}
	if job.Status == jobs.StatusComplete {
		out.Result = svc.resultView(job.Result)
	}
	writeJSON(w, http.StatusOK, out)
}

func (svc *Service) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	m, err := svc.Registry.List(r.Context(), svc.Cfg.Feed.OutputDir)
	if err != nil {
		svc.Log.Error("read manifest", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (svc *Service) handleFeed(w http.ResponseWriter, r *http.Request) {
	m, err := svc.Registry.List(r.Context(), svc.Cfg.Feed.OutputDir)
	if err != nil {
		svc.Log.Error("read manifest", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", common.ContentTypeRSS)
	w.Header().Set("Cache-Control", "public, s-maxage=60, stale-while-revalidate=300")
	if err := feed.WriteRSS(w, m, svc.Cfg.Server.BaseURL); err != nil {
		svc.Log.Warn("write rss", "err", err)
	}
}

// handleAudio redirects to the remote copy when there is one and otherwise
// serves the file from the episode directory.
func (svc *Service) handleAudio(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimSuffix(mux.Vars(r)["slug"], common.AudioExtension)
	ep, ok, err := svc.Registry.Find(r.Context(), svc.Cfg.Feed.OutputDir, slug)
	if err != nil {
		svc.Log.Error("read manifest", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Episode not found")
		return
	}
	if ep.BlobURL != "" {
		http.Redirect(w, r, ep.BlobURL, http.StatusFound)
		return
	}

	path := filepath.Join(svc.Cfg.Feed.OutputDir, filepath.Base(ep.DirName), filepath.Base(ep.AudioFileName))
	f, err := os.Open(path) // #nosec G304 - names come from the manifest and are reduced to base names
	if err != nil {
		writeError(w, http.StatusNotFound, "Audio file not found on disk")
		return
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusNotFound, "Audio file not found on disk")
		return
	}
	w.Header().Set("Content-Type", common.ContentTypeMP3)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", ep.AudioFileName))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(w, r, ep.AudioFileName, info.ModTime(), f)
}

func preferAsync(r *http.Request) bool {
	prefer := strings.ToLower(strings.TrimSpace(r.Header.Get(common.HeaderPrefer)))
	return strings.Contains(prefer, common.PreferRespondAsync)
}

func formBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", common.ContentTypeJSON)
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func safeInt64(u config.ByteSize) int64 {
	if u > config.ByteSize(math.MaxInt64) {
		return math.MaxInt64
	}
	return int64(u) // #nosec G115 - safe cast after explicit upper-bound check
}

func loggingMiddleware(next http.Handler, log *slog.Logger) http.Handler {
	// Fallback to a discard logger if none provided to avoid nil deref in tests or minimal setups.
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &writeWrap{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(ww, r)
		log.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.code,
			"duration", time.Since(start).String(),
			"remote", r.RemoteAddr)
	})
}

type writeWrap struct {
	http.ResponseWriter
	code int
}

func (w *writeWrap) WriteHeader(statusCode int) {
	w.code = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func recoveryMiddleware(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if log != nil {
					log.Error("handler panic", "path", r.URL.Path, "panic", rec)
				}
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
