package cmd

import (
	"context"
	"errors"
	"fmt"
	"github.com/carlmjohnson/versioninfo"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/orchestrix-io/orchestrix/internal"
	"github.com/orchestrix-io/orchestrix/internal/dev"
	"github.com/orchestrix-io/orchestrix/internal/metrics"
	"github.com/orchestrix-io/orchestrix/internal/style"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// Version is public so users can optionally specify or override the version
	// at build time by passing in ldflags, e.g.
	//   go build -ldflags "-X github.com/orchestrix-io/orchestrix/cmd.Version=vX.Y.Z"
	Version = ""
)

const envPrefix = "ORCHESTRIX"

type arg struct {
	cliShort, cfgFileEnvVar, description, defaultString string
	isBool, isInt, defaultIfBool                        bool
	defaultIfInt                                        int
}

var (
	// match when possible https://kubernetes.io/docs/reference/kubectl/
	rootNameToArg = map[string]arg{
		"all-namespaces": {
			cliShort:      "A",
			cfgFileEnvVar: "all-namespaces",
			description:   `If present, list resources across all namespaces`,
			isBool:        true,
		},
		"cache-ttl": {
			cfgFileEnvVar: "cache-ttl",
			description:   `How long listed pages of moderately changing kinds are served from cache. Pods use a fifth, rarely changing kinds three times this`,
			defaultString: "5m",
		},
		"config": {
			cfgFileEnvVar: "config",
			description:   `Config file path. Defaults to $XDG_CONFIG_HOME/orchestrix/config.yaml`,
		},
		"context": {
			cfgFileEnvVar: "context",
			description:   `Kubeconfig context. Defaults to current context`,
		},
		"debug": {
			cfgFileEnvVar: "debug",
			description:   `If present, write debug logs to $ORCHESTRIX_DEBUG_PATH or orchestrix.log`,
			isBool:        true,
		},
		"gke-auth-plugin": {
			cfgFileEnvVar: "gke-auth-plugin",
			description:   `Directory holding gke-gcloud-auth-plugin when it is not on the PATH`,
		},
		"help": {
			description: `Print usage`,
		},
		"kubeconfig": {
			cfgFileEnvVar: "kubeconfig",
			description:   `Kubeconfig file path. Defaults to $KUBECONFIG or $HOME/.kube/config`,
		},
		"log-tail": {
			cfgFileEnvVar: "log-tail",
			description:   `Number of past log lines to show per container. 0 shows the whole log`,
			isInt:         true,
			defaultIfInt:  200,
		},
		"metrics-addr": {
			cfgFileEnvVar: "metrics-addr",
			description:   `Serve Prometheus metrics on this address, e.g. :9090. Disabled by default`,
		},
		"namespace": {
			cliShort:      "n",
			cfgFileEnvVar: "namespace",
			description:   `Namespace. Defaults to the namespace of the context`,
		},
		"page-size": {
			cfgFileEnvVar: "page-size",
			description:   `Number of resources requested per page`,
			isInt:         true,
			defaultIfInt:  25,
		},
		"read-only": {
			cfgFileEnvVar: "read-only",
			description:   `If present, disable delete, shell and port-forward`,
			isBool:        true,
		},
		"resource": {
			cliShort:      "r",
			cfgFileEnvVar: "resource",
			description:   `Resource type shown on startup, by name or alias`,
			defaultString: "pods",
		},
	}

	description = fmt.Sprintf(`orchestrix %s

orchestrix is a terminal dashboard for browsing and managing Kubernetes resources`,
		getVersion(),
	)

	rootCmd = &cobra.Command{
		Use:   "orchestrix",
		Short: "orchestrix: k8s cluster dashboard",
		Long:  description,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd, rootNameToArg)
		},
		RunE:    mainEntrypoint,
		Version: getVersion(),
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cliLong := "help"
	rootCmd.PersistentFlags().BoolP(cliLong, rootNameToArg[cliLong].cliShort, rootNameToArg[cliLong].defaultIfBool, rootNameToArg[cliLong].description)

	for _, cliLong = range []string{
		"all-namespaces",
		"cache-ttl",
		"config",
		"context",
		"debug",
		"gke-auth-plugin",
		"kubeconfig",
		"log-tail",
		"metrics-addr",
		"namespace",
		"page-size",
		"read-only",
		"resource",
	} {
		c := rootNameToArg[cliLong]
		if c.isBool {
			rootCmd.PersistentFlags().BoolP(cliLong, c.cliShort, c.defaultIfBool, c.description)
		} else if c.isInt {
			rootCmd.PersistentFlags().IntP(cliLong, c.cliShort, c.defaultIfInt, c.description)
		} else {
			rootCmd.PersistentFlags().StringP(cliLong, c.cliShort, c.defaultString, c.description)
		}
		_ = viper.BindPFlag(c.cfgFileEnvVar, rootCmd.PersistentFlags().Lookup(cliLong))
	}
	rootCmd.SetVersionTemplate(`{{printf "orchestrix %s\n" .Version}}`)
	rootCmd.Flags().BoolP("version", "v", false, "Show orchestrix version")
}

func initConfig(cmd *cobra.Command, nameToArg map[string]arg) error {
	v := viper.GetViper()

	// bind viper to env vars, e.g. ORCHESTRIX_PAGE_SIZE
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(configHome(), "orchestrix"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return bindFlags(cmd, nameToArg)
}

func bindFlags(cmd *cobra.Command, nameToArg map[string]arg) error {
	v := viper.GetViper()
	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		// Determine the naming convention of the flags when represented in the config file
		cliLong := f.Name
		viperName := nameToArg[cliLong].cfgFileEnvVar
		if viperName == "" || err != nil {
			return
		}

		// Apply the viper config value to the flag when the flag is not manually specified
		// and viper has a value from the config file or env var
		if !f.Changed && v.IsSet(viperName) {
			val := v.Get(viperName)
			if setErr := cmd.Flags().Set(cliLong, fmt.Sprintf("%v", val)); setErr != nil {
				err = fmt.Errorf("error setting flag %s: %w", cliLong, setErr)
			}
		}
	})
	return err
}

func mainEntrypoint(cmd *cobra.Command, _ []string) error {
	config, err := getConfig(cmd)
	if err != nil {
		return err
	}
	if getBool(cmd, "debug") {
		dev.Enable()
		// the terminal is queried before the program owns it
		style.DebugColors()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if addr := cmd.Flags().Lookup("metrics-addr").Value.String(); addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr); err != nil {
				dev.Debug("metrics server stopped", "err", err.Error())
			}
		}()
	}

	program := tea.NewProgram(internal.InitialModel(config), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("error on orchestrix startup: %w", err)
	}
	return nil
}

func getVersion() string {
	if Version != "" {
		return Version
	}
	return versioninfo.Short()
}

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	return os.Getenv("USERPROFILE") // Windows
}

func configHome() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return xdg
	}
	return filepath.Join(homeDir(), ".config")
}

func getBool(cmd *cobra.Command, name string) bool {
	return cmd.Flags().Lookup(name).Value.String() == "true"
}

func getKubeConfigPath(cmd *cobra.Command) string {
	if kubeconfig := cmd.Flags().Lookup("kubeconfig").Value.String(); kubeconfig != "" {
		return kubeconfig
	}
	if env := os.Getenv("KUBECONFIG"); env != "" {
		return env
	}
	return filepath.Join(homeDir(), ".kube", "config")
}

func getPositiveInt(cmd *cobra.Command, name string, allowZero bool) (int64, error) {
	n, err := cmd.Flags().GetInt(name)
	if err != nil {
		return 0, fmt.Errorf("error parsing %s: %w", name, err)
	}
	if n < 0 || (n == 0 && !allowZero) {
		return 0, fmt.Errorf("error: %s must be positive", name)
	}
	return int64(n), nil
}

func getCacheTTL(cmd *cobra.Command) (time.Duration, error) {
	d, err := time.ParseDuration(cmd.Flags().Lookup("cache-ttl").Value.String())
	if err != nil {
		return 0, fmt.Errorf("error parsing cache-ttl: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("error: cache-ttl must not be negative")
	}
	return d, nil
}

func getConfig(cmd *cobra.Command) (internal.Config, error) {
	pageSize, err := getPositiveInt(cmd, "page-size", false)
	if err != nil {
		return internal.Config{}, err
	}
	logTail, err := getPositiveInt(cmd, "log-tail", true)
	if err != nil {
		return internal.Config{}, err
	}
	cacheTTL, err := getCacheTTL(cmd)
	if err != nil {
		return internal.Config{}, err
	}
	return internal.Config{
		KubeConfigPath:   getKubeConfigPath(cmd),
		Context:          cmd.Flags().Lookup("context").Value.String(),
		Namespace:        cmd.Flags().Lookup("namespace").Value.String(),
		AllNamespaces:    getBool(cmd, "all-namespaces"),
		Resource:         cmd.Flags().Lookup("resource").Value.String(),
		PageSize:         pageSize,
		CacheTTL:         cacheTTL,
		LogTail:          logTail,
		ReadOnly:         getBool(cmd, "read-only"),
		GKEAuthPluginDir: cmd.Flags().Lookup("gke-auth-plugin").Value.String(),
		Version:          getVersion(),
	}, nil
}
