package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/ardnew/softhcd/hcd/core"
	"github.com/ardnew/softhcd/pkg"
	"github.com/ardnew/softhcd/profile"
)

func newProfilesCmd(root *rootOptions) *cobra.Command {
	var variant, chip string
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List controller profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ps := profile.All()
			if variant != "" {
				v, ok := core.ParseVariant(variant)
				if !ok {
					return fmt.Errorf("%w: variant %q", pkg.ErrInvalidParameter, variant)
				}
				ps = ps.ByVariant(v)
			}
			if chip != "" {
				ps = ps.ForChip(chip)
			}

			rows := lo.Map(ps, func(p profile.Profile, _ int) []string {
				return []string{
					p.Name, p.Variant, strconv.Itoa(p.Channels), p.Speed,
					features(p), strings.Join(p.Chips, ","),
				}
			})
			out := cmd.OutOrStdout()
			return render(out, styled(out, root.plain),
				[]string{"name", "variant", "channels", "speed", "features", "chips"}, rows, -1)
		},
	}
	cmd.Flags().StringVar(&variant, "variant", "", "only profiles of this core variant (otg, drd)")
	cmd.Flags().StringVar(&chip, "chip", "", "only profiles fitted to this chip")
	return cmd
}

func features(p profile.Profile) string {
	fs := lo.Compact([]string{
		lo.Ternary(p.PHY != "", p.PHY, ""),
		lo.Ternary(p.DMA, "dma", ""),
		lo.Ternary(p.SOF, "sof", ""),
		lo.Ternary(p.BulkDoubleBuffer, "bulk-db", ""),
		lo.Ternary(p.IsoDoubleBuffer, "iso-db", ""),
		lo.Ternary(p.PMASize > 0, "pma "+strconv.Itoa(p.PMASize), ""),
	})
	return strings.Join(fs, " ")
}
