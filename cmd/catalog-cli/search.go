package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/levipshemish/jewgo-catalog/internal/config"
	"github.com/levipshemish/jewgo-catalog/pkg/client"
	"github.com/levipshemish/jewgo-catalog/pkg/logging"
	"github.com/levipshemish/jewgo-catalog/pkg/paginate"
	"github.com/levipshemish/jewgo-catalog/pkg/scrollstate"
)

type searchFlags struct {
	agency        string
	category      string
	priceMin      float64
	priceMax      float64
	minRating     float64
	latitude      float64
	longitude     float64
	radiusMiles   float64
	businessTypes []string
	dietary       []string
	pages         int
	asJSON        bool
	session       string
}

func newSearchCmd(cfg *config.Config) *cobra.Command {
	flags := &searchFlags{}

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the catalog and page through results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) > 0 {
				query = args[0]
			}
			return runSearch(cmd, cfg, flags, query)
		},
	}

	cmd.Flags().StringVar(&flags.agency, "agency", "", "certifying agency filter")
	cmd.Flags().StringVar(&flags.category, "category", "", "kosher category (meat, dairy, pareve)")
	cmd.Flags().Float64Var(&flags.priceMin, "price-min", 0, "minimum price level")
	cmd.Flags().Float64Var(&flags.priceMax, "price-max", 0, "maximum price level")
	cmd.Flags().Float64Var(&flags.minRating, "min-rating", 0, "minimum rating (0-5)")
	cmd.Flags().Float64Var(&flags.latitude, "lat", 0, "latitude for distance search")
	cmd.Flags().Float64Var(&flags.longitude, "lng", 0, "longitude for distance search")
	cmd.Flags().Float64Var(&flags.radiusMiles, "radius", 0, "search radius in miles")
	cmd.Flags().StringSliceVar(&flags.businessTypes, "business-type", nil, "business type filter (repeatable)")
	cmd.Flags().StringSliceVar(&flags.dietary, "dietary", nil, "dietary filter (repeatable)")
	cmd.Flags().IntVar(&flags.pages, "pages", 1, "number of pages to fetch")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "emit results as JSON")
	cmd.Flags().StringVar(&flags.session, "session", "cli", "scroll state session id")

	return cmd
}

// buildRawFilters assembles the loosely-typed filter map the coordinator
// normalizes, mirroring what a UI layer would submit.
func buildRawFilters(flags *searchFlags) map[string]any {
	raw := map[string]any{}

	if flags.agency != "" {
		raw["agency"] = flags.agency
	}
	if flags.category != "" {
		raw["kosherCategory"] = flags.category
	}
	if flags.priceMin > 0 {
		raw["priceMin"] = flags.priceMin
	}
	if flags.priceMax > 0 {
		raw["priceMax"] = flags.priceMax
	}
	if flags.minRating > 0 {
		raw["ratingMin"] = flags.minRating
	}
	if flags.latitude != 0 || flags.longitude != 0 {
		raw["latitude"] = flags.latitude
		raw["longitude"] = flags.longitude
	}
	if flags.radiusMiles > 0 {
		raw["maxDistanceMi"] = flags.radiusMiles
	}
	if len(flags.businessTypes) > 0 {
		raw["businessTypes"] = flags.businessTypes
	}
	if len(flags.dietary) > 0 {
		raw["dietary"] = flags.dietary
	}

	return raw
}

// newScrollStore selects the Redis backend when configured, otherwise
// in-memory.
func newScrollStore(ctx context.Context, cfg *config.Config, session string) (*scrollstate.Store, error) {
	opts := []scrollstate.Option{
		scrollstate.WithMaxAge(cfg.Scroll.MaxAge),
		scrollstate.WithMaxEntries(cfg.Scroll.MaxEntries),
	}

	if cfg.Redis.Addr == "" {
		return scrollstate.NewStore(scrollstate.NewMemoryBackend(), opts...), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	backend, err := scrollstate.NewRedisBackend(rdb, session)
	if err != nil {
		return nil, err
	}
	return scrollstate.NewStore(backend, opts...), nil
}

func runSearch(cmd *cobra.Command, cfg *config.Config, flags *searchFlags, query string) error {
	store, err := newScrollStore(cmd.Context(), cfg, flags.session)
	if err != nil {
		return err
	}
	return runSearchWithStore(cmd, cfg, flags, query, store)
}

func runSearchWithStore(cmd *cobra.Command, cfg *config.Config, flags *searchFlags, query string, store *scrollstate.Store) error {
	ctx := cmd.Context()
	logger := logging.NewLogger("catalog-cli")

	apiCfg := client.DefaultConfig(cfg.API.BaseURL)
	apiCfg.UserAgent = cfg.API.UserAgent
	apiCfg.Timeout = cfg.API.Timeout
	apiCfg.Retry.MaxAttempts = cfg.API.MaxAttempts

	api, err := client.New(apiCfg)
	if err != nil {
		return err
	}

	notifier := paginate.NewNotifier(paginate.DefaultNotifyInterval, func(u paginate.Update) {
		logger.Debug().
			Str("query", u.Query).
			Str("mode", string(u.Mode)).
			Int("item_count", u.ItemCount).
			Msg("Pagination state changed")
	})
	defer notifier.Stop()

	coord := paginate.NewCoordinator(api, paginate.Config{
		PreferredMode:    paginate.Mode(cfg.Pagination.PreferredMode),
		FallbackEnabled:  cfg.Pagination.FallbackEnabled,
		FailureThreshold: cfg.Pagination.FailureThreshold,
		PageSize:         cfg.Pagination.PageSize,
		SortKey:          cfg.Pagination.SortKey,
		Direction:        cfg.Pagination.Direction,
		DedupWindow:      cfg.Pagination.DedupWindow,
	}, paginate.WithScrollStateStore(store), paginate.WithNotifier(notifier))

	raw := buildRawFilters(flags)

	resumed, mismatch := coord.RestoreScrollState(ctx, query, raw)
	if resumed != nil && mismatch {
		logger.Warn().Msg("Saved position predates the current dataset, starting over")
		resumed = nil
	}

	if resumed != nil {
		logger.Info().
			Str("position", resumed.CursorOrOffset).
			Int("item_count", resumed.ItemCount).
			Msg("Resuming saved scroll position")
		if _, err := coord.FetchNextPage(ctx); err != nil {
			return fmt.Errorf("resume search: %w", err)
		}
	} else if _, err := coord.FetchData(ctx, query, raw, false); err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	for page := 1; page < flags.pages && coord.HasMore(); page++ {
		if _, err := coord.FetchNextPage(ctx); err != nil {
			return fmt.Errorf("fetch page %d: %w", page+1, err)
		}
	}

	items := coord.Items()
	logger.Info().
		Int("results", len(items)).
		Str("mode", string(coord.Mode())).
		Msg("Search complete")

	anchor := ""
	if len(items) > 0 {
		anchor = items[len(items)-1].ID.String()
	}
	coord.SaveScrollState(ctx, anchor, 0)

	if flags.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tAGENCY\tCITY\tRATING")
	for _, r := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.1f\n",
			r.ID, r.Name, r.KosherCategory, r.CertifyingAgency, r.Location.City, r.Rating)
	}
	return w.Flush()
}
