package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/Tarick/naca-feeds/internal/logger/zaplogger"

	"github.com/Tarick/naca-feeds/internal/application/worker"
	"github.com/Tarick/naca-feeds/internal/feed/refresher"
	"github.com/Tarick/naca-feeds/internal/leaderlease"
	"github.com/Tarick/naca-feeds/internal/messaging"
	"github.com/Tarick/naca-feeds/internal/messaging/nsqclient/producer"
	"github.com/Tarick/naca-feeds/internal/metrics"
	"github.com/Tarick/naca-feeds/internal/repository/postgresql"
	"github.com/Tarick/naca-feeds/internal/tracing"
	"github.com/Tarick/naca-feeds/internal/version"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	var cfgFile string

	// rootCmd represents the base command when called without any subcommands
	rootCmd := &cobra.Command{
		Use:   "feeds-worker",
		Short: "Feeds refresh worker",
		Long:  `Feeds refresh worker: periodically pulls out of date feeds and stores new content`,
		Run: func(cmd *cobra.Command, args []string) {
			if cfgFile != "" {
				// Use config file from the flag.
				viper.SetConfigFile(cfgFile)
			} else {
				viper.AddConfigPath(".")      // optionally look for config in the working directory
				viper.SetConfigName("config") // name of config file (without extension)
			}
			// If the config file is found, read it in.
			if err := viper.ReadInConfig(); err != nil {
				fmt.Printf("FATAL: error in config file %s. %s", viper.ConfigFileUsed(), err)
				os.Exit(1)
			}

			fmt.Println("Using config file:", viper.ConfigFileUsed())
			// Init logging
			logCfg := &zaplogger.Config{}
			if err := viper.UnmarshalKey("logging", logCfg); err != nil {
				fmt.Println("Failure reading 'logging' configuration:", err)
				os.Exit(1)
			}
			logger := zaplogger.New(logCfg).Sugar()
			defer logger.Sync()

			// Init tracing
			tracingCfg := tracing.Config{}
			if err := viper.UnmarshalKey("tracing", &tracingCfg); err != nil {
				fmt.Println("Failure reading 'tracing' configuration:", err)
				os.Exit(1)
			}
			tracer, tracerCloser, err := tracing.New(tracingCfg, logger)
			if err != nil {
				fmt.Println("FATAL: cannot init tracing, ", err)
				os.Exit(1)
			}
			defer tracerCloser.Close()

			// Create db configuration
			databaseViperConfig := viper.Sub("database")
			dbCfg := &postgresql.Config{}
			if err := databaseViperConfig.UnmarshalExact(dbCfg); err != nil {
				fmt.Println("FATAL: failure reading 'database' configuration: ", err)
				os.Exit(1)
			}
			// Open db
			db, err := postgresql.New(dbCfg, postgresql.NewZapLogger(logger.Desugar()), tracer)
			if err != nil {
				fmt.Println("FATAL: failure creating database connection, ", err)
				os.Exit(1)
			}

			// Create NSQ producer
			publishViperConfig := viper.Sub("publish")
			publishCfg := &producer.MessageProducerConfig{}
			if err := publishViperConfig.UnmarshalExact(&publishCfg); err != nil {
				fmt.Println("FATAL: failure reading NSQ 'publish' configuration, ", err)
				os.Exit(1)
			}
			messageProducer, err := producer.New(publishCfg)
			if err != nil {
				fmt.Println("FATAL: failure initialising NSQ producer, ", err)
				os.Exit(1)
			}
			feedsEventProducer := messaging.NewFeedsEventProducer(messageProducer, tracer)

			// Refresher configuration
			refresherViperConfig := viper.Sub("refresher")
			refresherCfg := refresher.Config{}
			if err := refresherViperConfig.UnmarshalExact(&refresherCfg); err != nil {
				fmt.Println("FATAL: failure reading 'refresher' configuration, ", err)
				os.Exit(1)
			}

			// Leader election is optional: a single replica deployment may
			// run without the lease.
			var lease refresher.LeaderLease
			if refresherCfg.LeaseName != "" {
				kubeLease, err := leaderlease.NewInCluster(refresherCfg.LeaseNamespace, refresherCfg.LeaseName)
				if err != nil {
					fmt.Println("FATAL: failure initialising leader lease, ", err)
					os.Exit(1)
				}
				lease = kubeLease
			}

			registry := prometheus.NewRegistry()
			collector := metrics.NewCollector(registry)

			driver := refresher.New(refresherCfg, db, lease, feedsEventProducer, collector, logger)

			// Serve metrics and health for the worker process
			monitoringAddress := viper.GetString("monitoring.address")
			if monitoringAddress != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler(registry))
				mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Content-Type", "text/plain")
					if err := db.Healthcheck(r.Context()); err != nil {
						logger.Error("Healthcheck: repository check failed with: ", err)
						w.WriteHeader(http.StatusServiceUnavailable)
						return
					}
					w.WriteHeader(http.StatusOK)
					w.Write([]byte("."))
				})
				go func() {
					if err := http.ListenAndServe(monitoringAddress, mux); err != nil && err != http.ErrServerClosed {
						logger.Error("Failure serving monitoring endpoints: ", err)
					}
				}()
			}

			worker.New(driver, logger).Start()
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of application",
		Long:  `Software version`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Feeds worker version:", version.Version, ",build on:", version.BuildTime)
		},
	}
	rootCmd.AddCommand(versionCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
