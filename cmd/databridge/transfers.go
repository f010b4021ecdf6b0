package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/DataBridge/internal/api"
	"github.com/dharsanguruparan/DataBridge/internal/approval"
	"github.com/dharsanguruparan/DataBridge/internal/model"
	"github.com/dharsanguruparan/DataBridge/internal/pipeline"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid transfer id %q", arg)
	}
	return id, nil
}

func newSubmitCmd(opts *globalOptions) *cobra.Command {
	var (
		req         pipeline.SubmitRequest
		category    string
		priority    string
		projectCode string
		projectID   int64
	)
	cmd := &cobra.Command{
		Use:   "submit FILE...",
		Short: "Upload files to staging and submit them for transfer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			batch := uuid.NewString()
			for _, path := range args {
				staged, err := c.Upload(ctx, path, batch)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "staged %s (%s)\n", staged.Filename, formatBytes(staged.Size))
				req.Files = append(req.Files, staged)
			}
			req.Category = model.Category(category)
			req.Priority = model.Priority(priority)
			if projectCode != "" || projectID > 0 {
				req.External = &model.ExternalLink{ProjectCode: projectCode}
				if projectID > 0 {
					req.External.ProjectID = &projectID
				}
			}
			t, err := c.Submit(ctx, req)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), t)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s submitted: %s\n", t.Reference, t.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Title, "title", "", "Transfer title")
	cmd.Flags().StringVar(&req.Notes, "notes", "", "Notes for approvers")
	cmd.Flags().StringVar(&category, "category", string(model.CategoryOther), "Payload category")
	cmd.Flags().StringVar(&priority, "priority", string(model.PriorityNormal), "low, normal, high or urgent")
	cmd.Flags().StringVar(&projectCode, "project-code", "", "Production-tracking project code")
	cmd.Flags().Int64Var(&projectID, "project-id", 0, "Production-tracking project id")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newListCmd(opts *globalOptions) *cobra.Command {
	var (
		statuses []string
		mine     bool
		awaiting string
		category string
		limit    int
		offset   int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transfers",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			q := url.Values{}
			for _, s := range statuses {
				q.Add("status", s)
			}
			if mine {
				q.Set("mine", "true")
			}
			if awaiting != "" {
				q.Set("awaiting", awaiting)
			}
			if category != "" {
				q.Set("category", category)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				q.Set("offset", strconv.Itoa(offset))
			}
			page, err := c.List(cmd.Context(), q)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), page)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTransfers(page.Items))
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d\n", len(page.Items), page.Total)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&mine, "mine", false, "Only my submissions")
	cmd.Flags().StringVar(&awaiting, "awaiting", "", "Transfers awaiting a role, or \"me\"")
	cmd.Flags().StringVar(&category, "category", "", "Filter by category")
	cmd.Flags().IntVar(&limit, "limit", 0, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	return cmd
}

func newShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one transfer with its files and approval chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			t, err := c.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), t)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTransferDetail(t))
			return nil
		},
	}
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history ID",
		Short: "Show the audit trail of a transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			entries, err := c.History(cmd.Context(), id)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderHistory(entries))
			return nil
		},
	}
}

func newDecisionCmd(opts *globalOptions, verb, short string) *cobra.Command {
	var text, stage string
	cmd := &cobra.Command{
		Use:   verb + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			t, err := c.Decide(cmd.Context(), id, api.DecisionRequest{
				Verdict: approval.Verdict(verb),
				Text:    text,
				Stage:   model.Role(stage),
			})
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), t)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", t.Reference, t.Status)
			return nil
		},
	}
	help := "Comment for the record"
	if verb == "reject" {
		help = "Reason for rejection"
	}
	cmd.Flags().StringVarP(&text, "message", "m", "", help)
	cmd.Flags().StringVar(&stage, "stage", "", "Stage you expect to decide; refused if it has moved on")
	return cmd
}

func newCancelCmd(opts *globalOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			t, err := c.Cancel(cmd.Context(), id, reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s cancelled\n", t.Reference)
			return nil
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Why the transfer is cancelled")
	return cmd
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count transfers per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			stats, err := c.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStats(stats.Counts))
			return nil
		},
	}
}

func newNotificationsCmd(opts *globalOptions) *cobra.Command {
	var unread, markRead bool
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"inbox"},
		Short:   "List your notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			items, err := c.Notifications(cmd.Context(), unread)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				if err := printJSON(cmd.OutOrStdout(), items); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), renderNotifications(items))
			}
			if markRead {
				n, err := c.MarkAllRead(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "marked %d read\n", n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "Only unread notifications")
	cmd.Flags().BoolVar(&markRead, "mark-read", false, "Mark everything read after listing")
	return cmd
}
