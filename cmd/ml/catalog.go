package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"missionline/internal/domain"
	"missionline/internal/engine"
	"missionline/internal/lifecycle"
)

func typeCmd() *cobra.Command {
	tc := &cobra.Command{Use: "type", Short: "Manage mission types"}
	tc.AddCommand(typeCreateCmd())
	tc.AddCommand(typeListCmd())
	tc.AddCommand(typeUpdateCmd())
	return tc
}

func typeCreateCmd() *cobra.Command {
	var name string
	var minutes int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a mission type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				mt, err := e.CreateMissionType(ctx, name, minutes)
				if err != nil {
					return err
				}
				return printTypes([]domain.MissionType{mt})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "mission type name")
	cmd.Flags().IntVar(&minutes, "duration", 0, "estimated duration in minutes (1..1440)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("duration")
	return cmd
}

func typeListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List mission types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListMissionTypes(ctx)
				if err != nil {
					return err
				}
				return printTypes(items)
			})
		},
	}
}

func typeUpdateCmd() *cobra.Command {
	var name string
	var minutes int
	cmd := &cobra.Command{
		Use:   "update <type-id>",
		Short: "Rename a mission type or change its duration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("mission_type_id", args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				mt, err := e.UpdateMissionType(ctx, id, engine.MissionTypeUpdate{
					Name:              optionalString(cmd, "name", name),
					EstimatedDuration: optionalInt(cmd, "duration", minutes),
				})
				if err != nil {
					return err
				}
				return printTypes([]domain.MissionType{mt})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().IntVar(&minutes, "duration", 0, "new estimated duration in minutes")
	return cmd
}

func templateCmd() *cobra.Command {
	tc := &cobra.Command{Use: "template", Short: "Manage the task templates of a mission type"}
	tc.AddCommand(templateListCmd())
	tc.AddCommand(templateAddCmd())
	tc.AddCommand(templateUpdateCmd())
	tc.AddCommand(templateDeleteCmd())
	tc.AddCommand(templateMoveCmd())
	tc.AddCommand(templateRenumberCmd())
	return tc
}

func templateListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <type-id>",
		Short: "List templates in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("mission_type_id", args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListTemplates(ctx, id)
				if err != nil {
					return err
				}
				return printTemplates(items)
			})
		},
	}
}

func templateAddCmd() *cobra.Command {
	var desc string
	var minutes int
	cmd := &cobra.Command{
		Use:   "add <type-id>",
		Short: "Append a template to a mission type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("mission_type_id", args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tpl, err := e.AddTemplate(ctx, id, desc, minutes)
				if err != nil {
					return err
				}
				return printTemplates([]domain.TaskTemplate{tpl})
			})
		},
	}
	cmd.Flags().StringVar(&desc, "description", "", "task description")
	cmd.Flags().IntVar(&minutes, "duration", 0, "estimated duration in minutes")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("duration")
	return cmd
}

func templateUpdateCmd() *cobra.Command {
	var desc string
	var minutes int
	cmd := &cobra.Command{
		Use:   "update <template-id>",
		Short: "Edit a template; existing missions keep their copies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tpl, err := e.UpdateTemplate(ctx, args[0], engine.TemplateUpdate{
					Description:       optionalString(cmd, "description", desc),
					EstimatedDuration: optionalInt(cmd, "duration", minutes),
				})
				if err != nil {
					return err
				}
				return printTemplates([]domain.TaskTemplate{tpl})
			})
		},
	}
	cmd.Flags().StringVar(&desc, "description", "", "new description")
	cmd.Flags().IntVar(&minutes, "duration", 0, "new estimated duration in minutes")
	return cmd
}

func templateDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <template-id>",
		Short: "Delete a template and close the gap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteTemplate(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted template %s\n", args[0])
				return nil
			})
		},
	}
}

func templateMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "move <template-id> up|down",
		Short:     "Swap a template with its neighbour",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(lifecycle.Up), string(lifecycle.Down)},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := lifecycle.ParseDirection(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tpl, err := e.MoveTemplate(ctx, args[0], dir)
				if err != nil {
					return err
				}
				items, err := e.ListTemplates(ctx, tpl.MissionTypeID)
				if err != nil {
					return err
				}
				return printTemplates(items)
			})
		},
	}
}

func templateRenumberCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "renumber <type-id>",
		Short: "Rewrite template positions as 1..n",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("mission_type_id", args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Renumber(ctx, id)
				if err != nil {
					return err
				}
				return printTemplates(items)
			})
		},
	}
}

func printTypes(items []domain.MissionType) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Name", "Minutes"})
	for _, mt := range items {
		tw.AppendRow(table.Row{mt.ID, mt.Name, mt.EstimatedDuration})
	}
	tw.Render()
	return nil
}

func printTemplates(items []domain.TaskTemplate) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"#", "ID", "Description", "Minutes"})
	total := 0
	for _, tpl := range items {
		tw.AppendRow(table.Row{tpl.Ord, tpl.ID, tpl.Description, tpl.EstimatedDuration})
		total += tpl.EstimatedDuration
	}
	tw.AppendFooter(table.Row{"", "", "Total", total})
	tw.Render()
	return nil
}
