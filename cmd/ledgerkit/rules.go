package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jask/ledgerkit/internal/categorize"
	"github.com/jask/ledgerkit/internal/rules"
)

const defaultStagePriority = 100

func newRulesCmd(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Stage, review and merge categorization rules",
	}
	cmd.AddCommand(newRulesStageCmd(get), newRulesMergeCmd(get), newRulesPendingCmd(get), newRulesSuggestCmd(get))
	return cmd
}

func newRulesStageCmd(get func() *app) *cobra.Command {
	var r rules.Rule
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Add a rule to the pending file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := get().workflow.Stage(cmd.Context(), r); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "staged %s\n", r.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&r.Name, "name", "", "rule name")
	cmd.Flags().StringArrayVar(&r.Patterns, "pattern", nil, "regular expression matched against the normalized description (repeatable)")
	cmd.Flags().StringVar(&r.Category, "category", "", "category assigned on match")
	cmd.Flags().StringArrayVar(&r.Tags, "tag", nil, "tag added on match (repeatable)")
	cmd.Flags().IntVar(&r.Priority, "priority", defaultStagePriority, "lower values are evaluated first")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("pattern")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func newRulesMergeCmd(get func() *app) *cobra.Command {
	var opts rules.MergeOptions
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge pending rules into the active rule set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			res, err := get().workflow.Merge(cmd.Context(), opts)
			var ce *rules.ConflictError
			if errors.As(err, &ce) {
				for _, c := range ce.Conflicts {
					fmt.Fprintln(out, "conflict:", c.String())
				}
				return fmt.Errorf("%d conflicts; resolve with --skip or --override", len(ce.Conflicts))
			}
			if errors.Is(err, rules.ErrNoPending) {
				fmt.Fprintln(out, "nothing to merge")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "merged: %s\n", strings.Join(res.Merged, ", "))
			if len(res.Skipped) > 0 {
				fmt.Fprintf(out, "still pending: %s\n", strings.Join(res.Skipped, ", "))
			}
			fmt.Fprintf(out, "backup: %s\nhash: %s\n", res.BackupPath, res.Hash)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&opts.Skip, "skip", nil, "leave the named pending rule staged (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Override, "override", nil, "merge the named pending rule despite conflicts (repeatable)")
	return cmd
}

func newRulesPendingCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List staged rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := get().workflow.Pending()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPRIORITY\tCATEGORY\tPATTERNS")
			for _, r := range p.Rules {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", r.Name, r.Priority, r.Category, strings.Join(r.Patterns, " | "))
			}
			return w.Flush()
		},
	}
}

func newRulesSuggestCmd(get func() *app) *cobra.Command {
	var stage bool
	var opts categorize.SuggestOptions
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Propose rules for recurring uncategorized merchants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			sugs, err := a.cat.Suggest(cmd.Context(), opts)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RULE\tCOUNT\tTOTAL\tCATEGORY\tEXAMPLES")
			for _, s := range sugs {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", s.Rule.Name, s.Count, s.Total.StringFixed(2), s.Rule.Category, strings.Join(s.Examples, "; "))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if !stage || len(sugs) == 0 {
				return nil
			}
			if err := a.cat.StageSuggestions(cmd.Context(), sugs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "staged %d rules\n", len(sugs))
			return nil
		},
	}
	cmd.Flags().BoolVar(&stage, "stage", false, "stage the suggestions as pending rules")
	cmd.Flags().IntVar(&opts.MinCount, "min-count", 2, "minimum occurrences of a merchant")
	cmd.Flags().Float64Var(&opts.Similarity, "similarity", 0.8, "edit-distance similarity that groups merchant spellings")
	return cmd
}
