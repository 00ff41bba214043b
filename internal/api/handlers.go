package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"punchcard-labs/timeclock/internal/cache"
)

// HealthCheckHandler handles GET /healthCheck. Reports store reachability
// and process uptime.
func HealthCheckHandler(db *gorm.DB, upSince time.Time) http.HandlerFunc {
	type health struct {
		Status string `json:"status"`
		Store  string `json:"store"`
		Uptime string `json:"uptime"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		resp := health{
			Status: "ok",
			Store:  "ok",
			Uptime: time.Since(upSince).Round(time.Second).String(),
		}

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			resp.Status = "down"
			resp.Store = err.Error()
			respondWithSuccess(w, http.StatusServiceUnavailable, &resp)
			return
		}

		respondWithSuccess(w, http.StatusOK, &resp)
	}
}

// RosterEntry is one member's duty summary on the read-only roster.
type RosterEntry struct {
	MemberID     string  `json:"member_id"`
	OnDuty       bool    `json:"on_duty"`
	Intervals    int     `json:"intervals"`
	TotalSeconds float64 `json:"total_seconds"`
}

// GuildRosterHandler handles GET /api/guilds/{guildID}/members. Returns each
// member's duty state and total duty time over the configured window.
func GuildRosterHandler(members *cache.MemberCache, historyDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guildID := chi.URLParam(r, "guildID")
		if guildID == "" {
			respondWithError(w, http.StatusBadRequest, "missing guild id")
			return
		}

		list, err := members.GetMembers(r.Context(), guildID)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "failed to load members")
			return
		}

		roster := make([]RosterEntry, 0, len(list))
		for _, m := range list {
			window := m.TimesSince(historyDays)
			roster = append(roster, RosterEntry{
				MemberID:     m.ID,
				OnDuty:       m.OnDuty,
				Intervals:    len(window),
				TotalSeconds: m.TotalOnDuty(historyDays).Seconds(),
			})
		}

		respondWithSuccess(w, http.StatusOK, &roster)
	}
}
