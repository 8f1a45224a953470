package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"focusguard/pkg/blocker"
	"focusguard/pkg/blocklist"
	"focusguard/pkg/catalog"
	"focusguard/pkg/config"
	"focusguard/pkg/dnsproxy"
	"focusguard/pkg/flush"
	"focusguard/pkg/hostsfile"
	"focusguard/pkg/monitor"
	"focusguard/pkg/policy"
	"focusguard/pkg/privilege"
	"focusguard/pkg/procsweep"
	"focusguard/pkg/version"
)

// app bundles the wired enforcement components behind the CLI commands.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	gate   privilege.Gate
	hosts  *hostsfile.Store
	store  *policy.FileStore
	engine *blocker.Engine
}

func newApp(cfg *config.Config, log *slog.Logger) (*app, error) {
	gate := privilege.SystemGate{ProbeDir: filepath.Dir(cfg.Hosts.Path)}
	hosts := hostsfile.New(hostsfile.Options{
		Path:      cfg.Hosts.Path,
		BackupDir: cfg.Hosts.BackupDir,
		Redirect:  cfg.Hosts.RedirectAddress,
		Heuristic: blocklist.Heuristic{
			MaxTokenLength: cfg.Hosts.MaxDomainLength,
			MaxTokenDots:   cfg.Hosts.MaxDomainDots,
		},
		Flusher:    flush.System{Log: log},
		MaxBackups: cfg.Hosts.MaxBackups,
		Log:        log,
	})
	store, err := policy.NewFileStore(afero.NewOsFs(), cfg.Policy.Path, log)
	if err != nil {
		return nil, fmt.Errorf("open policy store: %w", err)
	}
	return &app{
		cfg:    cfg,
		log:    log,
		gate:   gate,
		hosts:  hosts,
		store:  store,
		engine: blocker.New(hosts, store, gate, log),
	}, nil
}

func asError(res blocker.Result) error {
	if res.OK {
		return nil
	}
	return errors.New(res.Detail)
}

func newRootCommand(cfg *config.Config, log *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "focusguard",
		Short:         "Declarative distraction blocking via the OS hosts file",
		Long:          "Focusguard blocks configured platforms and custom domains by rewriting the hosts file and keeps the file converged to the declared policy with a background reconciliation loop.",
		Version:       version.FocusguardVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(
		newRunCommand(cfg, log),
		newBlockCommand(cfg, log),
		newUnblockCommand(cfg, log),
		newToggleCommand(cfg, log),
		newStatusCommand(cfg, log),
		newCustomCommand(cfg, log),
		newBackupCommand(cfg, log),
	)
	return root
}

func newRunCommand(cfg *config.Config, log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the enforcement daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}

			mon := monitor.New(monitor.Options{
				Engine:      a.engine,
				Gate:        a.gate,
				Interval:    cfg.Monitor.Interval,
				SettleDelay: cfg.Monitor.SettleDelay,
				HostsPath:   cfg.Hosts.Path,
				Watch:       cfg.Monitor.Watch,
				Log:         log,
			})
			mon.Start()
			if !mon.Running() {
				return errors.New("elevated privileges required to run the enforcement daemon")
			}

			var proxy *dnsproxy.Server
			if cfg.DNSProxy.Enabled {
				proxy = dnsproxy.New(cfg.DNSProxy.Listen, cfg.DNSProxy.Upstreams, a.engine.View(), log)
				go func() {
					if err := proxy.Start(); err != nil {
						log.Error("dns proxy failed", "error", err)
					}
				}()
			}

			var sweeper *procsweep.Sweeper
			if cfg.Sweep.Enabled {
				sweeper = procsweep.New(procsweep.Options{
					Processes: cfg.Sweep.Processes,
					Interval:  cfg.Sweep.Interval,
					Log:       log,
				})
				sweeper.Start()
			}

			if cfg.Hosts.Protect {
				if err := a.hosts.Protect(); err != nil {
					log.Warn("cannot mark hosts file read-only", "error", err)
				}
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

			for {
				sig := <-sigChan
				switch sig {
				case syscall.SIGHUP:
					log.Info("received SIGHUP, forcing reconciliation pass")
					mon.Kick()
					if proxy != nil {
						proxy.ClearCache()
					}
				case syscall.SIGINT, syscall.SIGTERM:
					log.Info("received shutdown signal", "signal", sig)
					if sweeper != nil {
						sweeper.Stop()
					}
					if proxy != nil {
						if err := proxy.Shutdown(); err != nil {
							log.Error("dns proxy shutdown failed", "error", err)
						}
					}
					mon.Stop()
					return nil
				}
			}
		},
	}
}

func newBlockCommand(cfg *config.Config, log *slog.Logger) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "block [category]",
		Short: "Block a category of domains",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			return asError(a.engine.BlockCategory(cmd.Context(), args[0], force))
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "strip malformed entries and re-add all domains")
	return cmd
}

func newUnblockCommand(cfg *config.Config, log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "unblock [category]",
		Short: "Unblock a category of domains",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			return asError(a.engine.UnblockCategory(cmd.Context(), args[0]))
		},
	}
}

func newToggleCommand(cfg *config.Config, log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle [category]",
		Short: "Toggle a category based on its declared state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			return asError(a.engine.ToggleCategory(cmd.Context(), args[0]))
		},
	}
}

func newStatusCommand(cfg *config.Config, log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show declared policy and enforcement state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}

			blocked := a.engine.BlockedDomains()
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Categories:")
			for _, name := range catalog.Names() {
				domains, ok := a.engine.View().CategoryDomains(name)
				if !ok {
					continue
				}
				state := "disabled"
				if a.engine.IsCategoryBlocked(name) {
					state = "enabled"
					if !blocked.ContainsAll(domains) {
						state = "enabled (drifted)"
					}
				}
				fmt.Fprintf(out, "  %-16s %s (%d domains)\n", name, state, len(domains))
			}

			custom := a.store.CustomDomains()
			fmt.Fprintf(out, "\nCustom domains (%d):\n", len(custom))
			for _, domain := range custom {
				fmt.Fprintf(out, "  - %s\n", domain)
			}

			fmt.Fprintf(out, "\nHosts file: %s (%d blocked entries)\n", a.hosts.Path(), len(blocked))
			fmt.Fprintf(out, "Elevated: %t\n", a.gate.Elevated())
			return nil
		},
	}
}

func newCustomCommand(cfg *config.Config, log *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "custom",
		Short: "Manage custom blocked domains",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add [domain]",
			Short: "Block a custom domain and its variations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cfg, log)
				if err != nil {
					return err
				}
				return asError(a.engine.BlockCustomDomain(cmd.Context(), args[0]))
			},
		},
		&cobra.Command{
			Use:   "remove [domain]",
			Short: "Unblock a custom domain and its variations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cfg, log)
				if err != nil {
					return err
				}
				return asError(a.engine.UnblockCustomDomain(cmd.Context(), args[0]))
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List custom blocked domains",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cfg, log)
				if err != nil {
					return err
				}
				for _, domain := range a.store.CustomDomains() {
					fmt.Fprintln(cmd.OutOrStdout(), domain)
				}
				return nil
			},
		},
	)

	return cmd
}

func newBackupCommand(cfg *config.Config, log *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage hosts file backups",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List available hosts file backups, newest first",
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cfg, log)
				if err != nil {
					return err
				}
				for _, name := range a.hosts.Backups() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "restore [name]",
			Short: "Restore the hosts file from a backup",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cfg, log)
				if err != nil {
					return err
				}
				if !a.gate.Elevated() {
					return errors.New("elevated privileges required to restore the hosts file")
				}
				return a.hosts.RestoreBackup(args[0])
			},
		},
	)

	return cmd
}
