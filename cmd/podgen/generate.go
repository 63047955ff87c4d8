package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/aescanero/podgen/internal/application/orchestrator"
	"github.com/aescanero/podgen/internal/application/scriptgen"
	"github.com/aescanero/podgen/internal/config"
	eventsmemory "github.com/aescanero/podgen/pkg/adapters/events/memory"
	promcollector "github.com/aescanero/podgen/pkg/adapters/metrics/prometheus"
	storagememory "github.com/aescanero/podgen/pkg/adapters/storage/memory"
	"github.com/aescanero/podgen/pkg/domain"
)

func newGenerateCommand() *cobra.Command {
	var (
		file   string
		output string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one script from a payload file",
		Long: `Generate runs one payload to completion in-process and prints the
script as JSON. The payload file may be JSON or YAML; "-" reads stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer func() { _ = f.Close() }()
				out = f
			}

			return generate(cmd, cfg, payload, out)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Payload file (.json, .yaml or .yml), or - for stdin")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the script to a file instead of stdout")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// generate runs one payload with in-memory backends
func generate(cmd *cobra.Command, cfg *config.Config, payload *domain.TriggerPayload, out io.Writer) error {
	logger := initLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	metricsCollector := promcollector.NewCollector(prometheus.NewRegistry())

	builder, err := newScriptBuilder(cfg, metricsCollector, logger)
	if err != nil {
		return err
	}

	manager := orchestrator.NewManager(
		builder,
		nil,
		eventsmemory.NewInMemoryEventBus(),
		storagememory.NewInMemoryRunArchive(cfg.ArchiveTTL),
		metricsCollector,
		orchestrator.NewValidator(),
		logger,
		cfg.Timeouts.RunExecutionTimeout,
		cfg.Timeouts.StepExecutionTimeout,
	)

	rec, err := manager.Generate(cmd.Context(), payload)
	if err != nil {
		var phaseErr *scriptgen.PhaseError
		if errors.As(err, &phaseErr) {
			logger.Error("generation failed",
				zap.String("phase", string(phaseErr.Phase)),
				zap.String("step_id", string(phaseErr.StepID)),
				zap.Error(phaseErr.Err))
		}
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rec.Script)
}

// readPayload decodes a trigger payload from a JSON or YAML file
func readPayload(stdin io.Reader, path string) (*domain.TriggerPayload, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	payload := &domain.TriggerPayload{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, payload)
	case ".json":
		err = json.Unmarshal(raw, payload)
	default:
		// YAML is a superset of JSON
		err = yaml.Unmarshal(raw, payload)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload %s: %w", path, err)
	}

	return payload, nil
}
