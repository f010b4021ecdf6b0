package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/dharsanguruparan/DataBridge/internal/model"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// now is swapped in tests so relative times are stable.
var now = time.Now

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func formatBytes(n int64) string {
	if n < 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

func formatWhen(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return humanize.RelTime(*t, now(), "ago", "from now")
}

func renderTransfers(items []*model.Transfer) string {
	rows := make([][]string, 0, len(items))
	for _, t := range items {
		updated := t.UpdatedAt
		rows = append(rows, []string{
			t.Reference,
			t.Title,
			string(t.Category),
			string(t.Priority),
			string(t.Status),
			fmt.Sprintf("%d", len(t.Files)),
			formatBytes(t.TotalSize()),
			formatWhen(&updated),
		})
	}
	return renderTable(
		[]string{"Reference", "Title", "Category", "Priority", "Status", "Files", "Size", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func renderTransferDetail(t *model.Transfer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", t.Reference, t.Title)
	fmt.Fprintf(&b, "status:    %s\n", t.Status)
	fmt.Fprintf(&b, "submitter: %s\n", t.SubmitterName)
	fmt.Fprintf(&b, "class:     %s / %s\n", t.Category, t.Priority)
	if t.ProductionPath != "" {
		fmt.Fprintf(&b, "delivery:  %s\n", t.ProductionPath)
	}
	if t.RejectionReason != "" {
		fmt.Fprintf(&b, "rejected:  %s\n", t.RejectionReason)
	}
	if t.FailureDetail != "" {
		fmt.Fprintf(&b, "failure:   %s\n", t.FailureDetail)
	}

	chain := make([][]string, 0, len(t.ApprovalChain))
	for _, item := range t.ApprovalChain {
		chain = append(chain, []string{string(item.Role), string(item.Status), item.DeciderName, item.Comment, formatWhen(item.DecidedAt)})
	}
	if len(chain) > 0 {
		b.WriteString(renderTable([]string{"Stage", "Status", "Decider", "Comment", "Decided"}, chain, nil))
		b.WriteString("\n")
	}

	files := make([][]string, 0, len(t.Files))
	for _, f := range t.Files {
		verified := "-"
		if f.Verified != nil {
			verified = fmt.Sprintf("%t", *f.Verified)
		}
		scan := string(f.ScanVerdict)
		if scan == "" {
			scan = "-"
		}
		files = append(files, []string{f.Filename, formatBytes(f.Size), shortSum(f.Checksum), scan, verified})
	}
	b.WriteString(renderTable([]string{"File", "Size", "SHA-256", "Scan", "Verified"}, files,
		[]columnAlignment{alignLeft, alignRight}))
	return b.String()
}

func shortSum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}

func renderHistory(entries []model.HistoryEntry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		actor := "system"
		if e.ActorID != nil {
			actor = fmt.Sprintf("#%d", *e.ActorID)
		}
		rows = append(rows, []string{e.CreatedAt.Local().Format(time.DateTime), actor, e.Action, e.Description})
	}
	return renderTable([]string{"When", "Actor", "Action", "Description"}, rows, nil)
}

func renderStats(counts map[model.Status]int) string {
	rows := make([][]string, 0, len(counts))
	total := 0
	for _, s := range model.AllStatuses {
		if n := counts[s]; n > 0 {
			rows = append(rows, []string{string(s), humanize.Comma(int64(n))})
			total += n
		}
	}
	rows = append(rows, []string{"total", humanize.Comma(int64(total))})
	return renderTable([]string{"Status", "Transfers"}, rows, []columnAlignment{alignLeft, alignRight})
}

func renderNotifications(items []model.Notification) string {
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	rows := make([][]string, 0, len(items))
	for _, n := range items {
		mark := "*"
		if n.Read {
			mark = ""
		}
		created := n.CreatedAt
		rows = append(rows, []string{mark, formatWhen(&created), string(n.Type), n.Title})
	}
	return renderTable([]string{"", "When", "Type", "Title"}, rows, nil)
}
