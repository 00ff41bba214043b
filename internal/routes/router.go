package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"punchcard-labs/timeclock/internal/api"
	"punchcard-labs/timeclock/internal/cache"
	"punchcard-labs/timeclock/internal/metrics"
	"punchcard-labs/timeclock/internal/middleware"
)

// RegisterRoutes builds the read-only ops router: health, and a per-guild
// duty roster for dashboards. All mutations go through the bot.
func RegisterRoutes(
	db *gorm.DB,
	members *cache.MemberCache,
	reg *metrics.Registry,
	historyDays int,
	upSince time.Time,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Metrics(reg))

	r.Get("/healthCheck", api.HealthCheckHandler(db, upSince))
	r.Route("/api", func(r chi.Router) {
		r.Get("/guilds/{guildID}/members", api.GuildRosterHandler(members, historyDays))
	})

	return r
}
