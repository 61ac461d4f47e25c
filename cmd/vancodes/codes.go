package main

import (
	"fmt"

	"github.com/samvad-hq/vancodes/internal/app"
	"github.com/samvad-hq/vancodes/internal/codefile"
	"github.com/samvad-hq/vancodes/pkg/van"
	"github.com/spf13/cobra"
)

func (c *cli) render(cmd *cobra.Command, run func() (any, error)) error {
	v, err := run()
	if err != nil {
		return err
	}
	return renderValue(cmd.OutOrStdout(), c.cfg.OutputFormat, v)
}

func (c *cli) listCmd() *cobra.Command {
	var (
		opts         van.ListOptions
		parentCodeID int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List codes, optionally filtered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("parent-code-id") {
				opts.ParentCodeID = van.Set(parentCodeID)
			}
			mgr, err := c.manager(cmd)
			if err != nil {
				return err
			}
			tbl, err := mgr.List(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return renderTable(cmd.OutOrStdout(), c.cfg.OutputFormat, tbl)
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "filter by code name")
	cmd.Flags().StringVar(&opts.SupportedEntities, "supported-entities", "", "filter by supported entity")
	cmd.Flags().IntVar(&parentCodeID, "parent-code-id", 0, "filter by parent code id; 0 matches top-level codes")
	cmd.Flags().StringVar(&opts.CodeType, "code-type", "", "filter by code type (Tag, SourceCode)")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 0, "page size hint sent as $top (default from CODES_PAGE_SIZE)")
	return cmd
}

func (c *cli) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <code-id>",
		Short: "Show a single code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			mgr, err := c.manager(cmd)
			if err != nil {
				return err
			}
			tbl, err := mgr.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return renderTable(cmd.OutOrStdout(), c.cfg.OutputFormat, tbl)
		},
	}
}

func (c *cli) typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List valid code types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := c.manager(cmd)
			if err != nil {
				return err
			}
			tbl, err := mgr.ListTypes(cmd.Context())
			if err != nil {
				return err
			}
			return renderTable(cmd.OutOrStdout(), c.cfg.OutputFormat, tbl)
		},
	}
}

func (c *cli) entitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "entities",
		Short: "List entities codes can be applied to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mgr, err := c.manager(cmd)
			if err != nil {
				return err
			}
			tbl, err := mgr.ListSupportedEntities(cmd.Context())
			if err != nil {
				return err
			}
			return renderTable(cmd.OutOrStdout(), c.cfg.OutputFormat, tbl)
		},
	}
}

func (c *cli) createCmd() *cobra.Command {
	var (
		name         string
		parentCodeID int
		description  string
		codeType     string
		entities     []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := van.CreateOptions{Name: name, CodeType: codeType}
			if cmd.Flags().Changed("parent-code-id") {
				opts.ParentCodeID = van.Set(parentCodeID)
			}
			if cmd.Flags().Changed("description") {
				opts.Description = van.Set(description)
			}
			if len(entities) > 0 {
				parsed, err := parseEntities(entities)
				if err != nil {
					return err
				}
				opts.SupportedEntities = parsed
			}

			mgr, err := c.manager(cmd)
			if err != nil {
				return err
			}
			tbl, err := mgr.Create(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return renderTable(cmd.OutOrStdout(), c.cfg.OutputFormat, tbl)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "code name (required)")
	cmd.Flags().IntVar(&parentCodeID, "parent-code-id", 0, "parent code id")
	cmd.Flags().StringVar(&description, "description", "", "description, at most 200 characters")
	cmd.Flags().StringVar(&codeType, "code-type", van.CodeTypeSourceCode, "code type (Tag, SourceCode)")
	cmd.Flags().StringArrayVar(&entities, "supported-entity", nil, "name[,searchable=bool][,applicable=bool][,start=RFC3339][,end=RFC3339]; repeatable")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (c *cli) updateCmd() *cobra.Command {
	var (
		name             string
		parentCodeID     int
		description      string
		codeType         string
		entities         []string
		clearDescription bool
		clearParent      bool
	)
	cmd := &cobra.Command{
		Use:   "update <code-id>",
		Short: "Update the given fields of a code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			var opts van.UpdateOptions
			if flags.Changed("name") {
				opts.Name = van.Set(name)
			}
			if flags.Changed("code-type") {
				opts.CodeType = van.Set(codeType)
			}
			switch {
			case clearParent && flags.Changed("parent-code-id"):
				return fmt.Errorf("--parent-code-id and --clear-parent are mutually exclusive")
			case clearParent:
				opts.ParentCodeID = van.Null[int]()
			case flags.Changed("parent-code-id"):
				opts.ParentCodeID = van.Set(parentCodeID)
			}
			switch {
			case clearDescription && flags.Changed("description"):
				return fmt.Errorf("--description and --clear-description are mutually exclusive")
			case clearDescription:
				opts.Description = van.Null[string]()
			case flags.Changed("description"):
				opts.Description = van.Set(description)
			}
			if len(entities) > 0 {
				parsed, err := parseEntities(entities)
				if err != nil {
					return err
				}
				opts.SupportedEntities = van.Set(parsed)
			}
			if len(opts.Body()) == 0 {
				return fmt.Errorf("update %d: no fields to change", id)
			}

			mgr, err := c.manager(cmd)
			if err != nil {
				return err
			}
			tbl, err := mgr.Update(cmd.Context(), id, opts)
			if err != nil {
				return err
			}
			if tbl.NumRows() == 0 {
				return c.render(cmd, func() (any, error) {
					return map[string]any{"code_id": id, "updated": true}, nil
				})
			}
			return renderTable(cmd.OutOrStdout(), c.cfg.OutputFormat, tbl)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new code name")
	cmd.Flags().IntVar(&parentCodeID, "parent-code-id", 0, "new parent code id")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&codeType, "code-type", "", "new code type")
	cmd.Flags().StringArrayVar(&entities, "supported-entity", nil, "replacement supported entities; repeatable")
	cmd.Flags().BoolVar(&clearDescription, "clear-description", false, "send a null description")
	cmd.Flags().BoolVar(&clearParent, "clear-parent", false, "send a null parent code id")
	return cmd
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <code-id>",
		Short: "Delete a code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			mgr, err := c.manager(cmd)
			if err != nil {
				return err
			}
			return c.render(cmd, func() (any, error) {
				resp, err := mgr.Delete(cmd.Context(), id)
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"code_id": id,
					"status":  resp.StatusCode(),
				}, nil
			})
		},
	}
}

func (c *cli) applyCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Create every code defined in a YAML or JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defs, err := codefile.Load(path)
			if err != nil {
				return err
			}
			mgr, err := c.manager(cmd)
			if err != nil {
				return err
			}
			results, applyErr := mgr.Apply(cmd.Context(), defs)
			if err := renderValue(cmd.OutOrStdout(), c.cfg.OutputFormat, results); err != nil {
				return err
			}
			return applyErr
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "path to the code definitions file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (c *cli) historyCmd() *cobra.Command {
	var limit, codeID int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show locally journaled code changes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.render(cmd, func() (any, error) {
				return app.ReadHistory(c.cfg, codeID, limit)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries to show (0 for all)")
	cmd.Flags().IntVar(&codeID, "code-id", 0, "only show changes to this code")
	return cmd
}
