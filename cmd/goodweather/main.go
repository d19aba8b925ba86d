package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"goodweather/config"
	"goodweather/internal/api"
	"goodweather/internal/forecast"
	"goodweather/internal/logger"
	"goodweather/internal/metrics"
	"goodweather/internal/mqtt"
	"goodweather/internal/refresher"
	"goodweather/internal/report"
	"goodweather/internal/schedule"
	"goodweather/internal/storage"
	"goodweather/internal/weather"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "goodweather",
		Short: "Good-weather window finder",
		Long:  "Evaluate hourly forecasts against comfort thresholds and report which time windows have good weather",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logger.SetLevel("debug")
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(testCmd())
	rootCmd.AddCommand(windowsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger.Setup(os.Stderr, level, cfg.Log.Format == "json")
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the evaluation service",
		Long:  "Start the refresher, API server, and MQTT publisher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			th, ws, err := cfg.Engine()
			if err != nil {
				return err
			}

			query, err := cfg.Query()
			if err != nil {
				return err
			}
			provider, err := weather.New(cfg.ProviderSettings())
			if err != nil {
				return err
			}

			db, err := storage.NewDatabase(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()
			logger.Info("forecast cache opened", "path", cfg.Database.Path)

			var publisher refresher.ReportPublisher
			mqttPublisher, err := mqtt.NewPublisher(mqtt.PublisherConfig{
				Broker:      cfg.MQTT.Broker,
				ClientID:    cfg.MQTT.ClientID,
				Username:    cfg.MQTT.Username,
				Password:    cfg.MQTT.Password,
				TopicPrefix: cfg.MQTT.TopicPrefix,
				Enabled:     cfg.MQTT.Enabled,
			})
			if err != nil {
				logger.Warn("mqtt connection failed", "error", err)
			} else {
				defer mqttPublisher.Close()
				publisher = mqttPublisher
			}

			ref := refresher.New(refresher.Config{
				Provider:    provider,
				Query:       query,
				Units:       cfg.Provider.Units,
				Cache:       db,
				Publisher:   publisher,
				Thresholds:  th,
				Windows:     ws,
				Interval:    cfg.Refresher.Interval,
				CacheTTL:    cfg.Cache.TTL,
				Retention:   cfg.Cache.Retention,
				Parallelism: cfg.Refresher.Parallelism,
				Enabled:     cfg.Refresher.Enabled,
			})

			if err := cfg.Watch(func(next *config.Config, err error) {
				if err != nil {
					logger.Error("ignoring invalid config change", "error", err)
					return
				}
				nextTh, nextWs, err := next.Engine()
				if err != nil {
					logger.Error("ignoring invalid config change", "error", err)
					return
				}
				logger.SetLevel(next.Log.Level)
				ref.UpdateEngine(nextTh, nextWs)
			}); err != nil {
				logger.Debug("config hot reload disabled", "error", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			go func() {
				if err := ref.Start(ctx); err != nil {
					logger.Error("refresher error", "error", err)
				}
			}()

			var server *api.Server
			if cfg.API.Enabled {
				server = api.NewServer(api.ServerConfig{
					Port:        cfg.API.Port,
					Engine:      ref,
					Store:       cfg,
					Cache:       db,
					Parallelism: cfg.Refresher.Parallelism,
				})

				go func() {
					if err := server.Start(); err != nil && err != http.ErrServerClosed {
						logger.Error("api server error", "error", err)
					}
				}()
			}

			logger.Info("goodweather started, press Ctrl+C to stop")

			<-sigChan
			logger.Info("shutting down")
			cancel()

			if server != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := server.Stop(shutdownCtx); err != nil {
					logger.Warn("api server shutdown", "error", err)
				}
			}
			return nil
		},
	}
}

func evaluateCmd() *cobra.Command {
	var (
		file     string
		start    string
		end      string
		days     int
		goodOnly bool
		summary  bool
		parallel int
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a forecast once and print the report",
		Long:  "Fetch the forecast from the configured provider (or read a Visual Crossing timeline JSON file) and print the evaluation as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			th, ws, err := cfg.Engine()
			if err != nil {
				return err
			}

			var f *forecast.Forecast
			if file != "" {
				f, err = readForecastFile(file)
			} else {
				f, err = fetchForecast(cmd.Context(), cfg, start, end, days)
			}
			if err != nil {
				return err
			}

			if parallel <= 0 {
				parallel = cfg.Refresher.Parallelism
			}
			r := report.Build(f, ws, th, report.Options{Parallelism: parallel})

			var out any = r
			switch {
			case goodOnly:
				out = r.GoodWindows()
			case summary:
				out = r.Summary
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "read a Visual Crossing timeline JSON file instead of calling the provider")
	cmd.Flags().StringVar(&start, "start", "", "first forecast date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "last forecast date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&days, "days", 0, "number of forecast days (defaults to provider.forecast_days)")
	cmd.Flags().BoolVar(&goodOnly, "good", false, "print only the good windows")
	cmd.Flags().BoolVar(&summary, "summary", false, "print only the summary")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "evaluate days with this many workers")
	return cmd
}

func testCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test the forecast provider",
		Long:  "Fetch a forecast from the configured provider and print what was received",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fmt.Printf("Testing provider %s for %q...\n", cfg.Provider.Name, cfg.Location.Query)

			started := time.Now()
			f, err := fetchForecast(cmd.Context(), cfg, "", "", 0)
			if err != nil {
				fmt.Printf("Provider FAILED: %v\n", err)
				return err
			}

			fmt.Printf("Provider OK in %s\n", time.Since(started).Round(time.Millisecond))
			fmt.Printf("\nForecast:\n")
			fmt.Printf("  Provider:  %s\n", f.Provider)
			fmt.Printf("  Location:  %s\n", firstNonEmpty(f.ResolvedAddress, f.Address))
			fmt.Printf("  Coords:    %.4f, %.4f\n", f.Latitude, f.Longitude)
			fmt.Printf("  Timezone:  %s\n", f.Location())
			fmt.Printf("  Days:      %d\n", len(f.Days))

			for _, d := range f.Days {
				counts := make(map[metrics.Metric]int)
				for _, h := range d.Hours {
					for m := range h.Values {
						counts[m]++
					}
				}
				fmt.Printf("  %s  %2d hours", d.Date, len(d.Hours))
				for _, m := range metrics.DefaultCatalog().Metrics() {
					fmt.Printf("  %s=%d", m, counts[m])
				}
				fmt.Println()
			}
			return nil
		},
	}
}

func windowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "windows",
		Short: "List configured windows and thresholds",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			th, ws, err := cfg.Engine()
			if err != nil {
				return err
			}

			fmt.Println("Windows:")
			for _, w := range ws {
				fmt.Printf("  %-12s %02d:00-%02d:00  %s\n", w.Name, w.StartHour, w.EndHour, w.Label)
			}
			fmt.Println("\nThresholds:")
			for _, m := range th.Metrics() {
				fmt.Printf("  %-12s %s\n", m, th[m])
			}
			fmt.Println("\nWeekdays:")
			for i, label := range schedule.WeekdayLabels() {
				fmt.Printf("  %d %s\n", i, label)
			}
			return nil
		},
	}
}

func fetchForecast(ctx context.Context, cfg *config.Config, start, end string, days int) (*forecast.Forecast, error) {
	provider, err := weather.New(cfg.ProviderSettings())
	if err != nil {
		return nil, err
	}

	q, err := cfg.Query()
	if err != nil {
		return nil, err
	}
	q.StartDate, q.EndDate = start, end
	if days > 0 {
		q.Days = days
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Provider.Timeout*3)
	defer cancel()
	return provider.Forecast(ctx, q)
}

func readForecastFile(path string) (*forecast.Forecast, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f, err := forecast.Decode(file, metrics.DefaultCatalog())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if f.Provider == "" {
		f.Provider = "file"
	}
	return f, nil
}

func printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
