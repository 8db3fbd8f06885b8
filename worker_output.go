package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"triage_worker/core/domain"
	"triage_worker/pkg/apperr"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

var (
	positiveColor = color.New(color.FgGreen)
	negativeColor = color.New(color.FgRed, color.Bold)
	neutralColor  = color.New(color.FgHiBlack)
	noticeColor   = color.New(color.FgCyan)
	errorColor    = color.New(color.FgRed, color.Bold)
)

func sentimentColor(s domain.Sentiment) *color.Color {
	switch s {
	case domain.SentimentPositive:
		return positiveColor
	case domain.SentimentNegative:
		return negativeColor
	default:
		return neutralColor
	}
}

func printRunStatistics(w io.Writer, stats *domain.RunStatistics) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Metric", "Count"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.PerColumn = []tw.Align{tw.AlignLeft, tw.AlignRight}
	})

	failed := strconv.Itoa(stats.Failed)
	if stats.Failed > 0 {
		failed = errorColor.Sprint(failed)
	}
	data := [][]string{
		{"Threads", strconv.Itoa(stats.TotalThreads)},
		{"Messages", strconv.Itoa(stats.TotalMessages)},
		{"Already processed", strconv.Itoa(stats.AlreadyProcessed)},
		{"Newly processed", strconv.Itoa(stats.NewlyProcessed)},
		{"Notifications sent", strconv.Itoa(stats.NotificationsSent)},
		{"Failed", failed},
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func printStatistics(w io.Writer, stats *domain.DailyStatistics) error {
	fmt.Fprintf(w, "Dates: %s\n", strings.Join(stats.IncludedDates, ", "))

	summary := tablewriter.NewWriter(w)
	summary.Header([]string{"Metric", "Count"})
	summary.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.PerColumn = []tw.Align{tw.AlignLeft, tw.AlignRight}
	})
	if err := summary.Bulk([][]string{
		{"Emails", strconv.Itoa(stats.TotalEmails)},
		{"Keyword triggered", strconv.Itoa(stats.KeywordTriggeredEmails)},
		{"AI triggered", strconv.Itoa(stats.AITriggeredEmails)},
		{"AI analyzed", strconv.Itoa(stats.AIAnalyzedEmails)},
		{"Problems detected", strconv.Itoa(stats.ProblemDetected)},
		{positiveColor.Sprint("Positive"), strconv.Itoa(stats.Positive)},
		{negativeColor.Sprint("Negative"), strconv.Itoa(stats.Negative)},
		{neutralColor.Sprint("Neutral"), strconv.Itoa(stats.Neutral)},
	}); err != nil {
		return err
	}
	if err := summary.Render(); err != nil {
		return err
	}

	emotions := tablewriter.NewWriter(w)
	emotions.Header([]string{"Emotion", "Sentiment", "Count"})
	emotions.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.PerColumn = []tw.Align{tw.AlignLeft, tw.AlignLeft, tw.AlignRight}
	})
	var data [][]string
	for _, e := range domain.AllEmotions() {
		c := sentimentColor(e.Sentiment())
		data = append(data, []string{
			e.Icon() + " " + e.DisplayName(),
			c.Sprint(string(e.Sentiment())),
			strconv.Itoa(stats.Emotions[e]),
		})
	}
	if err := emotions.Bulk(data); err != nil {
		return err
	}
	return emotions.Render()
}

func printReport(w io.Writer, report *domain.DailyReport, loc *time.Location) error {
	noticeColor.Fprintf(w, "Daily report %s (%s)\n", report.Date.In(loc).Format("2006-01-02"), report.Stats.DateRange)
	if err := printStatistics(w, report.Stats); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nSummary (%s):\n%s\n", report.Model, report.Summary)
	return nil
}

func printNotice(w io.Writer, msg string) {
	noticeColor.Fprintln(w, msg)
}

func printError(err error) {
	if appErr := apperr.AsAppError(err); appErr != nil && appErr.Err == nil {
		errorColor.Fprintf(os.Stderr, "Error [%s]: %s\n", appErr.Code, appErr.Message)
		return
	}
	errorColor.Fprintf(os.Stderr, "Error: %v\n", err)
}
