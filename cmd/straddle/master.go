package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/scripmaster"
)

func newMasterCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "master",
		Short: "Scrip master maintenance",
	}

	var out string
	download := &cobra.Command{
		Use:   "download",
		Short: "Download the scrip master and store it in the file, cache and snapshot stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if out == "" {
				out = a.cfg.Master.SavePath
			}
			up := scripmaster.NewHTTPSource(a.cfg.Master.URL, a.cfg.Master.Timeout)
			body, err := up.Fetch(ctx)
			if err != nil {
				return err
			}
			recs, err := scripmaster.Decode(body)
			if err != nil {
				return err
			}
			if err := scripmaster.ValidateCatalog(a.catalogOptions()...)(body); err != nil {
				return fmt.Errorf("downloaded master rejected: %w", err)
			}
			if err := scripmaster.SaveFile(out, body); err != nil {
				return fmt.Errorf("save %s: %w", out, err)
			}

			at := time.Now()
			st := a.openStores()
			defer st.Close()
			if st.cache != nil {
				if err := st.cache.Set(ctx, at, body); err != nil {
					a.log.Warn("master: cache write failed", "error", err)
				}
			}
			if st.snapshots != nil {
				if _, err := st.snapshots.Save(ctx, at, up.Name(), body); err != nil {
					a.log.Warn("master: snapshot write failed", "error", err)
				}
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"path":    out,
				"records": len(recs),
				"bytes":   len(body),
			})
		},
	}
	download.Flags().StringVarP(&out, "out", "o", "", "Destination file (default master.save_path)")

	info := &cobra.Command{
		Use:   "info",
		Short: "Load the catalog and report its size and source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := a.openStores()
			defer st.Close()
			load, err := a.loadCatalog(cmd.Context(), st)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"instruments":  load.catalog.Len(),
				"origin":       load.origin,
				"bytes":        load.stats.Bytes,
				"took":         load.stats.Duration.String(),
				"strike_scale": load.catalog.StrikeScale().String(),
			})
		},
	}

	cmd.AddCommand(download, info)
	return cmd
}
