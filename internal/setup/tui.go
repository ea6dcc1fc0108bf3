// Package setup runs the interactive wizard that writes a fundwatch config file.
package setup

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/fundwatch/config"
	"github.com/vadiminshakov/fundwatch/internal/domain"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers holds the wizard input before it becomes a config file.
type Answers struct {
	DataDir          string
	Backend          string
	FundIDs          []string
	Method           string
	BaselineLookback string
	WeightTolerance  string
	Timeout          string
	Holidays         []string
	ServerAddr       string
}

// DefaultAnswers pre-fills the wizard.
func DefaultAnswers() Answers {
	return Answers{
		DataDir:          config.DefaultDataDir,
		Backend:          config.DefaultStorageBackend,
		Method:           config.DefaultMethod,
		BaselineLookback: strconv.Itoa(config.DefaultBaselineLookback),
		WeightTolerance:  domain.DefaultWeightTolerance.String(),
		Timeout:          config.DefaultCollectTimeout.String(),
		ServerAddr:       config.DefaultServerAddr,
	}
}

// RunTUI launches the terminal configuration wizard and writes the result to path.
func RunTUI(path string) error {
	a := DefaultAnswers()
	catalogue := config.DefaultFunds()

	screen := func(step string) {
		fmt.Print("\033[H\033[2J")
		fmt.Println(headerStyle.Render("FUNDWATCH CONFIG WIZARD"))
		fmt.Println(stepStyle.Render(step))
	}

	screen("STEP 1: FUNDS")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Pick the funds whose holdings you want to follow.\n"))
	options := make([]huh.Option[string], 0, len(catalogue))
	for _, f := range catalogue {
		options = append(options, huh.NewOption(fmt.Sprintf("%s [%s]", f.Name, f.Category), f.ID))
	}
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Funds").
				Options(options...).
				Value(&a.FundIDs).
				Validate(func(ids []string) error {
					if len(ids) == 0 {
						return errors.New("pick at least one fund")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("STEP 2: STORAGE")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Data directory").
				Value(&a.DataDir).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("data directory cannot be empty")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Snapshot storage").
				Options(
					huh.NewOption("JSON file per snapshot", "file"),
					huh.NewOption("Write-ahead log", "wal"),
				).
				Value(&a.Backend),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("STEP 3: ANALYSIS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Price drift estimator").
				Options(
					huh.NewOption("Median of untraded position ratios", "median"),
					huh.NewOption("Aggregate weight ratio", "aggregate"),
				).
				Value(&a.Method),
			huh.NewInput().
				Title("Baseline lookback").
				Description("Business days searched back for an earlier snapshot").
				Value(&a.BaselineLookback).
				Validate(validatePositiveInt),
			huh.NewInput().
				Title("Weight tolerance").
				Description("Accepted distance of the weight sum from 100, in percentage points").
				Value(&a.WeightTolerance).
				Validate(validateTolerance),
			huh.NewInput().
				Title("Fetch timeout").
				Description("Duration string (e.g. 30s, 1m)").
				Value(&a.Timeout).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("FINAL CONFIRMATION")
	summary := fmt.Sprintf("Funds: %d\nData dir: %s\nStorage: %s\nEstimator: %s\nLookback: %s\n",
		len(a.FundIDs), a.DataDir, a.Backend, a.Method, a.BaselineLookback)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	var confirm bool
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return errors.New("setup cancelled by user")
	}

	tmp, err := Build(a, catalogue)
	if err != nil {
		return err
	}
	if err := config.Save(path, tmp); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", path)))
	return nil
}

// Build turns wizard answers into a config file body. Funds are taken from
// catalogue in catalogue order.
func Build(a Answers, catalogue []domain.Fund) (config.ConfigTmp, error) {
	if err := validatePositiveInt(a.BaselineLookback); err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "baseline lookback")
	}
	if err := validateTolerance(a.WeightTolerance); err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "weight tolerance")
	}
	timeout, err := time.ParseDuration(a.Timeout)
	if err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "timeout")
	}

	selected := make(map[string]struct{}, len(a.FundIDs))
	for _, id := range a.FundIDs {
		selected[id] = struct{}{}
	}
	var funds []domain.Fund
	for _, f := range catalogue {
		if _, ok := selected[f.ID]; ok {
			funds = append(funds, f)
		}
	}
	if len(funds) != len(selected) {
		return config.ConfigTmp{}, errors.New("selection contains funds missing from the catalogue")
	}

	return config.ConfigTmp{
		DataDir:   a.DataDir,
		Timezone:  config.DefaultTimezone,
		Storage:   config.StorageConfigTmp{Backend: a.Backend},
		Calendar:  config.CalendarConfigTmp{Holidays: a.Holidays},
		Collector: config.CollectorConfigTmp{Timeout: timeout},
		Analyzer: config.AnalyzerConfigTmp{
			Method:              a.Method,
			BaselineLookbackStr: a.BaselineLookback,
			WeightToleranceStr:  a.WeightTolerance,
		},
		Server: config.ServerConfigTmp{Addr: a.ServerAddr},
		Funds:  funds,
	}, nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return errors.New("must be a positive integer")
	}
	return nil
}

func validateTolerance(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return errors.New("must be a valid number")
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("must be between 0 and 100")
	}
	return nil
}
