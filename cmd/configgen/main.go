package main

import (
	"errors"
	"os"

	"github.com/danmuck/cqc/internal/config"
	"github.com/danmuck/cqc/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	logging.ConfigureRuntime()
	fs := pflag.NewFlagSet("configgen", pflag.ContinueOnError)
	format := fs.String("format", "toml", "config format: toml|yaml")
	output := fs.StringP("output", "o", "", "output path for config template")
	validate := fs.Bool("validate", false, "validate an existing config file")
	input := fs.StringP("input", "i", "", "config path for validation (defaults to cqc.<format>)")
	force := fs.Bool("force", false, "overwrite existing config file")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*format)
		}
		cfg, err := config.Load(path)
		if err != nil {
			log.Fatal().Err(err).Msg("config invalid")
		}
		log.Info().Str("path", path).Uint16("app_id", cfg.Client.AppID).Strs("listen", cfg.Node.Listen).Msg("config valid")
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*format)
	}
	if err := config.WriteTemplate(target, *format, *force); err != nil {
		log.Fatal().Err(err).Msg("write template")
	}
	log.Info().Str("format", *format).Str("path", target).Msg("wrote config template")
}

func defaultPath(format string) string {
	switch format {
	case "yaml", "yml":
		return "cqc.yaml"
	default:
		return "cqc.toml"
	}
}
