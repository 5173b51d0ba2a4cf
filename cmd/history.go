package cmd

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/manifoldco/promptui"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/job-buddy/internal/filtering"
	"github.com/spigell/job-buddy/internal/history"
)

// statuses offered by the interactive picker. Any other value can be set with --status.
var statuses = []string{history.DefaultStatus, "Applied", "Interview", "Offer", "Rejected"}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse recorded runs and track the applications made with them",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		historyList(cmd)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <index>",
	Short: "Show everything recorded for one run",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		historyShow(args[0])
	},
}

var historyUpdateCmd = &cobra.Command{
	Use:   "update <index>",
	Short: "Update the application tracking of one run",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		historyUpdate(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyUpdateCmd)

	historyListCmd.Flags().Int("offset", 0, "number of newest entries to skip")
	historyListCmd.Flags().Int("limit", history.DefaultPageSize, "maximum number of entries to show")
	historyListCmd.Flags().StringSlice("status", nil, "only entries with one of these statuses")
	historyListCmd.Flags().String("company", "", "only entries whose company name or url contains this text")
	historyListCmd.Flags().Bool("applied", false, "only entries with this applied flag")
	historyListCmd.Flags().String("since", "", "only entries recorded on or after this date (2006-01-02 or RFC3339)")

	addTrackingFlags(historyUpdateCmd)
}

func addTrackingFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("applied", false, "mark the application as sent")
	cmd.Flags().String("platform", "", "where the application was sent")
	cmd.Flags().String("url", "", "application url")
	cmd.Flags().String("status", "", "application status, for example Applied or Interview")
	cmd.Flags().String("notes", "", "free-form notes")
}

func historyList(cmd *cobra.Command) {
	logger, config := setup()
	store := history.New(config.HistoryFile, logger)

	flags := cmd.Flags()
	offset, _ := flags.GetInt("offset")
	limit, _ := flags.GetInt("limit")

	steps, err := listFilters(cmd)
	if err != nil {
		logger.Fatal("parsing filters", zap.Error(err))
	}

	var (
		entries []history.Entry
		total   int
	)
	if filtering.Enabled(steps) {
		logger.Debug("filtering history", zap.Strings("filters", activeFilters(steps)))
		entries, total, err = filteredPage(logger, store, steps, offset, limit)
	} else {
		var page *history.Page
		page, err = store.List(offset, limit)
		if page != nil {
			entries, total = page.Items, page.Total
		}
	}
	if err != nil {
		fatalHistory(logger, "listing history", err)
	}

	if len(entries) == 0 {
		pterm.Info.Printfln("no runs recorded in %s", store.Path())
		return
	}

	_ = pterm.DefaultTable.WithHasHeader().WithData(historyTable(entries)).Render()
	pterm.Info.Printfln("showing %d of %d", len(entries), total)
	if filtering.Enabled(steps) {
		pterm.Info.Printfln("filtered by %s", strings.Join(activeFilters(steps), "; "))
	}
}

// activeFilters renders enabled filters as "name key=value".
func activeFilters(steps []filtering.Filter) []string {
	var active []string
	for _, status := range filtering.Describe(steps) {
		if !status.Enabled {
			continue
		}

		keys := make([]string, 0, len(status.Details))
		for key := range status.Details {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		parts := []string{status.Name}
		for _, key := range keys {
			parts = append(parts, key+"="+status.Details[key])
		}
		active = append(active, strings.Join(parts, " "))
	}
	return active
}

func listFilters(cmd *cobra.Command) ([]filtering.Filter, error) {
	flags := cmd.Flags()
	wanted, _ := flags.GetStringSlice("status")
	company, _ := flags.GetString("company")
	since, _ := flags.GetString("since")

	var applied *bool
	if flags.Changed("applied") {
		value, _ := flags.GetBool("applied")
		applied = &value
	}

	var sinceTime time.Time
	if since = strings.TrimSpace(since); since != "" {
		var err error
		if sinceTime, err = parseSince(since); err != nil {
			return nil, err
		}
	}

	return []filtering.Filter{
		filtering.NewStatus(wanted),
		filtering.NewApplied(applied),
		filtering.NewCompany(company),
		filtering.NewSince(sinceTime),
	}, nil
}

func parseSince(value string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, errors.Newf("invalid --since %q, use 2006-01-02 or RFC3339", value)
	}
	return t, nil
}

// filteredPage reads the whole log, filters it and pages the result.
func filteredPage(logger *zap.Logger, store *history.Store, steps []filtering.Filter, offset, limit int) ([]history.Entry, int, error) {
	if offset < 0 || limit < 1 || limit > history.MaxPageSize {
		return nil, 0, errors.Wrapf(history.ErrInvalidIndex, "offset %d limit %d", offset, limit)
	}

	all := []history.Entry{}
	for next := 0; ; next += history.MaxPageSize {
		page, err := store.List(next, history.MaxPageSize)
		if err != nil {
			return nil, 0, err
		}
		all = append(all, page.Items...)
		if next+history.MaxPageSize >= page.Total {
			break
		}
	}

	matched := filtering.Run(logger, steps, all)
	if offset >= len(matched) {
		return []history.Entry{}, len(matched), nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], len(matched), nil
}

func historyShow(arg string) {
	logger, config := setup()
	store := history.New(config.HistoryFile, logger)

	index, err := parseIndex(arg)
	if err != nil {
		fatalHistory(logger, "showing history entry", err)
	}

	snapshot, err := store.Get(index)
	if err != nil {
		fatalHistory(logger, "showing history entry", err)
	}

	printSnapshot(index, snapshot)
}

func historyUpdate(cmd *cobra.Command, arg string) {
	logger, config := setup()
	store := history.New(config.HistoryFile, logger)

	index, err := parseIndex(arg)
	if err != nil {
		fatalHistory(logger, "updating history entry", err)
	}

	patch := trackingPatch(cmd)
	if patch.IsEmpty() {
		// Fail on a bad index before asking anything.
		if _, err := store.Get(index); err != nil {
			fatalHistory(logger, "updating history entry", err)
		}

		prompt := promptui.Select{
			Label: "Choose a status and press ENTER",
			Items: statuses,
		}
		_, status, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
		patch.Status = &status
	}

	tracking, err := store.Update(index, patch)
	if err != nil {
		fatalHistory(logger, "updating history entry", err)
	}

	printTracking(*tracking)
	pterm.Success.Printfln("entry %d updated", index)
}

func trackingPatch(cmd *cobra.Command) history.TrackingPatch {
	flags := cmd.Flags()
	patch := history.TrackingPatch{}

	if flags.Changed("applied") {
		applied, _ := flags.GetBool("applied")
		patch.Applied = &applied
	}

	strs := map[string]**string{
		"platform": &patch.Platform,
		"url":      &patch.ApplicationURL,
		"status":   &patch.Status,
		"notes":    &patch.Notes,
	}
	for name, target := range strs {
		if !flags.Changed(name) {
			continue
		}
		value, _ := flags.GetString(name)
		*target = &value
	}

	return patch
}

func parseIndex(arg string) (int, error) {
	index, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, errors.Wrapf(history.ErrInvalidIndex, "%q is not a number", arg)
	}
	return index, nil
}

// fatalHistory turns index misuse into a plain "not found" and reports the rest as is.
func fatalHistory(logger *zap.Logger, msg string, err error) {
	if errors.Is(err, history.ErrIndexOutOfRange) || errors.Is(err, history.ErrInvalidIndex) {
		logger.Fatal("history entry not found", zap.Error(err),
			zap.String("hint", "run 'job-buddy history list' to see the indices"),
		)
	}
	logger.Fatal(msg, zap.Error(err))
}
