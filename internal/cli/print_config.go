package cli

import (
	"context"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/coordinatio/TFS-excel-docx-generate/internal/config"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(cfg *config.Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from. Secrets are only reported as set or unset.",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			return execPrintConfig(io, cfg)
		},
	}
}

func execPrintConfig(io *IO, cfg *config.Config) error {
	io.Println("effective_cwd=" + cfg.EffectiveCwd)
	io.Println("storage_dir=" + cfg.StorageDir)
	io.Println("essence_db=" + cfg.EssenceDB)
	io.Println("templates_dir=" + cfg.TemplatesDir)

	if cfg.NamesReference != "" {
		io.Println("names_reference=" + cfg.NamesReference)
	}

	if cfg.PredefinedSpend != "" {
		io.Println("predefined_spend=" + cfg.PredefinedSpend)
	}

	if cfg.TrackerURL != "" {
		io.Println("tracker_url=" + cfg.TrackerURL)
	}

	io.Println("projects=" + strings.Join(cfg.Projects, ","))
	io.Println("log_level=" + cfg.LogLevel)
	io.Println("ai.model=" + cfg.AI.Model)

	if cfg.AI.BaseURL != "" {
		io.Println("ai.base_url=" + cfg.AI.BaseURL)
	}

	io.Println("ai.temperature=" + strconv.FormatFloat(cfg.AI.Temperature, 'g', -1, 64))
	io.Println("ai.max_requests_per_minute=" + strconv.FormatFloat(cfg.AI.MaxRequestsPerMinute, 'g', -1, 64))
	io.Println("TIMEREPORT_PAT=" + setOrUnset(cfg.Secrets.TrackerPAT))
	io.Println("OPENAI_API_KEY=" + setOrUnset(cfg.Secrets.OpenAIAPIKey))

	io.Println("")
	io.Println("# sources")

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
		io.Println("(defaults only)")
	} else {
		if cfg.Sources.Global != "" {
			io.Println("global_config=" + cfg.Sources.Global)
		}

		if cfg.Sources.Project != "" {
			io.Println("project_config=" + cfg.Sources.Project)
		}
	}

	return nil
}

func setOrUnset(secret string) string {
	if secret == "" {
		return "(unset)"
	}

	return "(set)"
}
