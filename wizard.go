package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// runConfigureWizard interactively builds a FileConfig, grounded on
// the retrieval pack's huh+lipgloss terminal forms. It starts from
// defaults (or an existing server.yaml, if present) so re-running
// `palisade configure` edits rather than resets a config.
func runConfigureWizard(existing FileConfig) (FileConfig, error) {
	cfg := existing

	onlineModeStr := "true"
	if !cfg.OnlineMode {
		onlineModeStr = "false"
	}
	protocolStr := strconv.Itoa(int(cfg.SupportedProtocolVersion))
	thresholdStr := strconv.Itoa(cfg.NetworkCompressionThreshold)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Value(&cfg.ListenAddr),

			huh.NewSelect[string]().
				Title("Online mode (verify sessions against Mojang)").
				Options(huh.NewOption("On", "true"), huh.NewOption("Off", "false")).
				Value(&onlineModeStr),

			huh.NewInput().
				Title("Supported protocol version").
				Value(&protocolStr).
				Validate(func(s string) error {
					_, err := strconv.Atoi(s)
					return err
				}),

			huh.NewInput().
				Title("Server version string (shown on outdated-client kicks)").
				Value(&cfg.ServerMinecraftVersionString),

			huh.NewInput().
				Title("MOTD").
				Value(&cfg.Motd),

			huh.NewInput().
				Title("Compression threshold (bytes, 0 disables)").
				Value(&thresholdStr).
				Validate(func(s string) error {
					_, err := strconv.Atoi(s)
					return err
				}),

			huh.NewInput().
				Title("Metrics listen address (blank disables /metrics)").
				Value(&cfg.MetricsAddr),
		),
	)

	if err := form.Run(); err != nil {
		return cfg, fmt.Errorf("palisade: configure wizard: %w", err)
	}

	cfg.OnlineMode = onlineModeStr == "true"
	if v, err := strconv.Atoi(protocolStr); err == nil {
		cfg.SupportedProtocolVersion = int32(v)
	}
	if v, err := strconv.Atoi(thresholdStr); err == nil {
		cfg.NetworkCompressionThreshold = v
	}

	summary := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("42")).
		Render("server.yaml ready")
	fmt.Println(summary)

	return cfg, nil
}
