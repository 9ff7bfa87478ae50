package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/listing-dedup/internal/dedup"
	"github.com/sells-group/listing-dedup/internal/model"
	"github.com/sells-group/listing-dedup/internal/resilience"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the group review API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		api := &reviewAPI{store: env.Store, svc: env.Service}

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", api.health)
		r.Route("/groups", func(r chi.Router) {
			r.Get("/", api.listGroups)
			r.Get("/{id}", api.getGroup)
			r.Post("/{id}/approve", api.approveGroup)
			r.Post("/{id}/reject", api.rejectGroup)
			r.Post("/{id}/claim", api.claimGroup)
			r.Post("/{id}/complete", api.completeGroup)
			r.Post("/{id}/fail", api.failGroup)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			// The signal context is already canceled; give in-flight
			// requests their own grace period.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting review api", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

type reviewAPI struct {
	store dedup.Store
	svc   *dedup.Service
}

// groupView is a group with its members and the pairwise scores a reviewer
// needs to judge it.
type groupView struct {
	Group   *model.ListingGroup    `json:"group"`
	Members []model.Listing        `json:"members"`
	Pairs   []model.DedupCandidate `json:"pairs"`
}

func (a *reviewAPI) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *reviewAPI) listGroups(w http.ResponseWriter, r *http.Request) {
	status := model.GroupStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = model.GroupPendingReview
	}

	groups, err := a.store.ListGroupsByStatus(r.Context(), status, 100)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]groupView, 0, len(groups))
	for i := range groups {
		v, err := a.buildView(r, &groups[i])
		if err != nil {
			writeError(w, err)
			return
		}
		views = append(views, *v)
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *reviewAPI) getGroup(w http.ResponseWriter, r *http.Request) {
	g, err := a.store.GetGroup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := a.buildView(r, g)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *reviewAPI) buildView(r *http.Request, g *model.ListingGroup) (*groupView, error) {
	members, err := a.store.ListGroupMembers(r.Context(), g.ID)
	if err != nil {
		return nil, err
	}

	memberSet := make(map[string]bool, len(members))
	for i := range members {
		memberSet[members[i].ID] = true
	}

	var pairs []model.DedupCandidate
	seen := make(map[string]bool)
	for i := range members {
		cands, err := a.store.ListCandidatesFor(r.Context(), members[i].ID)
		if err != nil {
			return nil, err
		}
		for _, c := range cands {
			if !memberSet[c.ListingAID] || !memberSet[c.ListingBID] || seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			pairs = append(pairs, c)
		}
	}

	return &groupView{Group: g, Members: members, Pairs: pairs}, nil
}

func (a *reviewAPI) approveGroup(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.ApproveGroup(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (a *reviewAPI) rejectGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		http.Error(w, `{"error":"reason is required"}`, http.StatusBadRequest)
		return
	}
	if err := a.svc.RejectGroup(r.Context(), chi.URLParam(r, "id"), req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func (a *reviewAPI) claimGroup(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.ClaimGroup(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "claimed"})
}

func (a *reviewAPI) completeGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PropertyID string `json:"property_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PropertyID == "" {
		http.Error(w, `{"error":"property_id is required"}`, http.StatusBadRequest)
		return
	}
	if err := a.svc.CompleteGroup(r.Context(), chi.URLParam(r, "id"), req.PropertyID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (a *reviewAPI) failGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason    string `json:"reason"`
		Transient bool   `json:"transient"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		http.Error(w, `{"error":"reason is required"}`, http.StatusBadRequest)
		return
	}

	cause := error(eris.New(req.Reason))
	if req.Transient {
		cause = resilience.NewTransientError(cause)
	}
	if err := a.svc.HandleUnificationFailure(r.Context(), chi.URLParam(r, "id"), cause); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "failure recorded"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case eris.Is(err, dedup.ErrGroupNotFound), eris.Is(err, dedup.ErrListingNotFound):
		status = http.StatusNotFound
	case eris.Is(err, dedup.ErrGroupStatusConflict), eris.Is(err, dedup.ErrGroupNotClaimable):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
