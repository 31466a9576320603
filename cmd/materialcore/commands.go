package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"materialcore/internal/adapters/exports"
	"materialcore/internal/blob"
	"materialcore/internal/core"
)

func newBootstrapCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the registry records if they do not exist yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := a.svc.GetOrInitialize(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(reg)
		},
	}
}

func newMaterialCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "material", Short: "Manage materials"}

	var name, owner, kind string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a material with its standard profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch core.MaterialType(kind) {
			case core.MaterialTypeMaterial, core.MaterialTypeSample:
			default:
				return fmt.Errorf("--type: want material or sample, got %q", kind)
			}
			material, profile, _, err := a.svc.CreateMaterial(cmd.Context(), core.Material{
				Name:  name,
				Owner: owner,
				Type:  core.MaterialType(kind),
			})
			if err != nil {
				return err
			}
			return a.print(struct {
				Material core.Material           `json:"material"`
				Profile  core.CompositionProfile `json:"standard_profile"`
			}{material, profile})
		},
	}
	create.Flags().StringVar(&name, "name", "", "material name")
	create.Flags().StringVar(&owner, "owner", "", "owner (defaults to registry.default_owner)")
	create.Flags().StringVar(&kind, "type", string(core.MaterialTypeMaterial), "material or sample")
	_ = create.MarkFlagRequired("name")

	var materialID string
	del := &cobra.Command{
		Use:   "delete",
		Short: "Delete a material and all of its profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := a.svc.DeleteMaterial(cmd.Context(), materialID)
			return err
		},
	}
	del.Flags().StringVar(&materialID, "id", "", "material id")
	_ = del.MarkFlagRequired("id")

	cmd.AddCommand(create, del)
	return cmd
}

func newProfileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "profile", Short: "Inspect and copy composition profiles"}

	var owner, displayName, description string
	duplicate := &cobra.Command{
		Use:   "duplicate <profile-id>",
		Short: "Deep-copy a profile for another owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var overrides core.ProfileOverrides
			if cmd.Flags().Changed("display-name") {
				overrides.DisplayName = &displayName
			}
			if cmd.Flags().Changed("description") {
				overrides.Description = &description
			}
			profile, _, err := a.svc.Duplicate(cmd.Context(), args[0], owner, overrides)
			if err != nil {
				return err
			}
			return a.print(profile)
		},
	}
	duplicate.Flags().StringVar(&owner, "owner", "", "owner of the copy (defaults to registry.default_owner)")
	duplicate.Flags().StringVar(&displayName, "display-name", "", "display name of the copy")
	duplicate.Flags().StringVar(&description, "description", "", "description of the copy")

	var format string
	tables := &cobra.Command{
		Use:   "tables <profile-id>",
		Short: "Print the composition tables of a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := exports.ParseFormat(format)
			if err != nil {
				return err
			}
			t, err := a.svc.ProfileTables(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			payload, err := exports.Render(f, t)
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(payload)
			return err
		},
	}
	tables.Flags().StringVar(&format, "format", string(exports.FormatJSON), "json or csv")

	cmd.AddCommand(duplicate, tables)
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var (
		formats     []string
		requestedBy string
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "export <profile-id>...",
		Short: "Render profile tables into the configured blob store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := blob.Open(ctx, a.cfg.BlobConfig())
			if err != nil {
				return fmt.Errorf("open blob store: %w", err)
			}
			input := exports.Input{ProfileIDs: args, RequestedBy: requestedBy}
			for _, s := range formats {
				f, err := exports.ParseFormat(strings.ToLower(strings.TrimSpace(s)))
				if err != nil {
					return err
				}
				input.Formats = append(input.Formats, f)
			}

			worker := exports.NewWorker(a.svc, store, exports.SlogAuditLogger{Logger: a.logger}, a.cfg.Export.QueueSize)
			worker.Start()
			defer func() {
				if err := worker.Stop(context.WithoutCancel(ctx)); err != nil {
					a.logger.Warn("export worker stop", "error", err)
				}
			}()

			queued, err := worker.Enqueue(ctx, input)
			if err != nil {
				return err
			}
			waitCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			rec, err := worker.Wait(waitCtx, queued.ID)
			if err != nil {
				return fmt.Errorf("export %s: %w", queued.ID, err)
			}
			if err := a.print(rec); err != nil {
				return err
			}
			if rec.Status == exports.StatusFailed {
				return fmt.Errorf("export %s failed: %s", rec.ID, rec.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&formats, "format", nil, "artifact formats (json, csv); default both")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "", "actor recorded in the export audit trail")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "maximum time to wait for the export")
	return cmd
}
