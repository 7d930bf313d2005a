package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/libseat/internal/auth"
	"github.com/example/libseat/internal/jobs"
	"github.com/example/libseat/internal/reservation"
	"github.com/example/libseat/internal/seat"
)

//go:embed templates/*.html static/*
var fs embed.FS

type JobStore interface {
	Create(ctx context.Context, j jobs.Job) (int64, error)
	ListByUser(ctx context.Context, userID int64) ([]jobs.Job, error)
	GetByIDForUser(ctx context.Context, id, userID int64) (jobs.Job, error)
	Cancel(ctx context.Context, id, userID int64) error
	ListEvents(ctx context.Context, jobID int64) ([]jobs.Event, error)
}

type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (int64, error)
}

type Sealer interface {
	Seal(plaintext, account string) (string, error)
}

type Server struct {
	Auth    *auth.Store
	Users   Authenticator
	Limiter *auth.LoginLimiter
	Jobs    JobStore
	Seats   *seat.Resolver
	Secrets Sealer

	Location *time.Location
	BaseURL  string
	Log      *zap.Logger

	now func() time.Time
}

type jobForm struct {
	Name    string
	Room    string
	Seat    string
	Account string
	Day     string
	Start   string
	End     string
	RunAt   string
}

type tmplData struct {
	Title string
	User  int64

	Flash  string
	Rooms  []seat.Room
	Jobs   []jobs.Job
	Job    jobs.Job
	Events []jobs.Event
	Form   jobForm
}

func (s *Server) Routes() http.Handler {
	if s.Log == nil {
		s.Log = zap.NewNop()
	}
	if s.Location == nil {
		s.Location = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.Users == nil {
		s.Users = s.Auth
	}
	if s.Limiter == nil {
		s.Limiter = auth.NewLoginLimiter(12*time.Second, 5)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /static/", http.FileServer(http.FS(fs)))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /login", s.handleLoginForm)
	mux.Handle("POST /login", s.Limiter.Limit(http.HandlerFunc(s.handleLogin)))
	mux.HandleFunc("POST /logout", s.handleLogout)

	authed := func(h http.HandlerFunc) http.Handler { return s.Auth.RequireAuth(h) }
	mux.Handle("GET /api/rooms", authed(s.handleRooms))
	mux.Handle("GET /api/resolve", authed(s.handleResolve))
	mux.Handle("GET /{$}", authed(s.handleHome))
	mux.Handle("GET /jobs/new", authed(s.handleJobNew))
	mux.Handle("POST /jobs", authed(s.handleJobCreate))
	mux.Handle("GET /jobs/{id}", authed(s.handleJobDetail))
	mux.Handle("POST /jobs/{id}/cancel", authed(s.handleJobCancel))

	return mux
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	js, err := s.Jobs.ListByUser(r.Context(), uid)
	if err != nil {
		s.serverError(w, "list jobs", err)
		return
	}
	s.render(w, http.StatusOK, "templates/jobs.html", tmplData{Title: "Reservations", User: uid, Jobs: js})
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "templates/login.html", tmplData{Title: "Login"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(r.FormValue("username"))
	id, err := s.Users.Authenticate(r.Context(), username, r.FormValue("password"))
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			s.Log.Warn("authenticate", zap.String("username", username), zap.Error(err))
		}
		s.render(w, http.StatusUnauthorized, "templates/login.html", tmplData{Title: "Login", Flash: "Invalid username/password"})
		return
	}
	if err := s.Auth.SetSession(w, r, id); err != nil {
		s.serverError(w, "set session", err)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleJobNew(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	s.render(w, http.StatusOK, "templates/new_job.html", tmplData{
		Title: "New reservation",
		User:  uid,
		Rooms: s.Seats.Table().Rooms(),
		Form: jobForm{
			Day:   reservation.Tomorrow.String(),
			Start: "08:00",
			End:   "22:00",
			RunAt: s.now().In(s.Location).Format(runAtLayout),
		},
	})
}

const runAtLayout = "2006-01-02T15:04"

func (s *Server) handleJobCreate(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f := jobForm{
		Name:    strings.TrimSpace(r.FormValue("name")),
		Room:    strings.TrimSpace(r.FormValue("room")),
		Seat:    strings.TrimSpace(r.FormValue("seat")),
		Account: strings.TrimSpace(r.FormValue("account")),
		Day:     r.FormValue("day"),
		Start:   strings.TrimSpace(r.FormValue("start")),
		End:     strings.TrimSpace(r.FormValue("end")),
		RunAt:   strings.TrimSpace(r.FormValue("run_at")),
	}
	again := func(msg string) {
		s.render(w, http.StatusBadRequest, "templates/new_job.html", tmplData{
			Title: "New reservation", User: uid, Flash: msg, Rooms: s.Seats.Table().Rooms(), Form: f,
		})
	}

	seatNo, err := strconv.Atoi(f.Seat)
	if err != nil {
		again("Seat must be a number")
		return
	}
	day, err := reservation.ParseDay(f.Day)
	if err != nil {
		again(err.Error())
		return
	}
	runAt := s.now()
	if f.RunAt != "" {
		if runAt, err = time.ParseInLocation(runAtLayout, f.RunAt, s.Location); err != nil {
			again("Invalid run time")
			return
		}
	}
	password := r.FormValue("password")
	if password == "" {
		again("Library password required")
		return
	}
	sealed, err := s.Secrets.Seal(password, f.Account)
	if err != nil {
		s.serverError(w, "seal password", err)
		return
	}

	j := jobs.Job{
		UserID:         uid,
		Name:           f.Name,
		Account:        f.Account,
		PasswordSealed: sealed,
		Room:           f.Room,
		Seat:           seatNo,
		Day:            day,
		Start:          f.Start,
		End:            f.End,
		RunAt:          runAt,
	}
	if err := j.Validate(s.Seats); err != nil {
		again(err.Error())
		return
	}
	id, err := s.Jobs.Create(r.Context(), j)
	if err != nil {
		s.Log.Error("create job", zap.Error(err))
		again("Failed to create job")
		return
	}
	http.Redirect(w, r, "/jobs/"+strconv.FormatInt(id, 10), http.StatusFound)
}

func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	j, err := s.Jobs.GetByIDForUser(r.Context(), id, uid)
	if errors.Is(err, jobs.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.serverError(w, "get job", err)
		return
	}
	evs, err := s.Jobs.ListEvents(r.Context(), id)
	if err != nil {
		s.serverError(w, "list events", err)
		return
	}
	s.render(w, http.StatusOK, "templates/job.html", tmplData{Title: j.Name, User: uid, Job: j, Events: evs})
}

func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := s.Jobs.Cancel(r.Context(), id, uid); err != nil && !errors.Is(err, jobs.ErrNotFound) {
		s.serverError(w, "cancel job", err)
		return
	}
	http.Redirect(w, r, "/jobs/"+strconv.FormatInt(id, 10), http.StatusFound)
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rooms": s.Seats.Table().Rooms()})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	slot, err := s.Seats.Resolve(code)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": code, "slot_id": slot})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) serverError(w http.ResponseWriter, op string, err error) {
	s.Log.Error(op, zap.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data tmplData) {
	t, err := template.New("").Funcs(template.FuncMap{
		"when": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.In(s.Location).Format("2006-01-02 15:04:05")
		},
		"whenp": func(t *time.Time) string {
			if t == nil {
				return "-"
			}
			return t.In(s.Location).Format("2006-01-02 15:04:05")
		},
		"deref": func(p *int) string {
			if p == nil {
				return "-"
			}
			return strconv.Itoa(*p)
		},
	}).ParseFS(fs, "templates/base.html", name)
	if err != nil {
		s.serverError(w, "parse template", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		s.Log.Error("render", zap.String("template", name), zap.Error(err))
	}
}

func Start(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info("listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
